package entity

import "strings"

var stateAbbrev = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "district of columbia": "DC",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID", "illinois": "IL",
	"indiana": "IN", "iowa": "IA", "kansas": "KS", "kentucky": "KY", "louisiana": "LA",
	"maine": "ME", "maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT", "virginia": "VA",
	"washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"puerto rico": "PR",
}

var validAbbrev = func() map[string]bool {
	m := make(map[string]bool, len(stateAbbrev))
	for _, a := range stateAbbrev {
		m[a] = true
	}
	return m
}()

// NormalizeState returns the two-letter abbreviation for a state name or
// abbreviation, or "" when it is not recognized.
func NormalizeState(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) == 2 {
		up := strings.ToUpper(s)
		if validAbbrev[up] {
			return up
		}
		return ""
	}
	return stateAbbrev[strings.ToLower(strings.Join(strings.Fields(s), " "))]
}

// NormalizeCity folds case and whitespace for city comparison.
func NormalizeCity(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
