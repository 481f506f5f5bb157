package routing

import (
	"math"
	"strings"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

// EarthRadiusMiles is the sphere radius used for great-circle distance.
const EarthRadiusMiles = 3959.0

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(a))
}

// MatchKind names the rule that placed a lead inside a provider's area.
type MatchKind string

const (
	MatchNone       MatchKind = ""
	MatchZip        MatchKind = "zip"
	MatchCoverage   MatchKind = "coverage"
	MatchRadius     MatchKind = "radius"
	MatchNationwide MatchKind = "nationwide"
)

// GeoMatcher decides whether a provider's declared area includes a lead.
type GeoMatcher struct {
	// NationwideFallback lets providers with no ZIP list, coverage or radius
	// match every lead.
	NationwideFallback bool
}

func (g GeoMatcher) Matches(p *pentity.Provider, l *lentity.Lead) bool {
	return g.Match(p, l) != MatchNone
}

// Match applies, in order: explicit ZIP list, else coverage records, then
// the service radius as an alternative to either. A declared ZIP list whose
// entries are all unusable still counts as a list and so never falls back
// to nationwide.
func (g GeoMatcher) Match(p *pentity.Provider, l *lentity.Lead) MatchKind {
	hasZips := p.ZipCodes.Declared()
	hasCoverage := len(p.Coverage) > 0

	if hasZips {
		if p.ZipCodes.Contains(l.Zip) {
			return MatchZip
		}
	} else if hasCoverage && coverageIncludes(p.Coverage, l) {
		return MatchCoverage
	}
	if p.HasRadius() {
		if withinRadius(p, l) {
			return MatchRadius
		}
		return MatchNone
	}
	if !hasZips && !hasCoverage && g.NationwideFallback {
		return MatchNationwide
	}
	return MatchNone
}

func coverageIncludes(cov []pentity.Coverage, l *lentity.Lead) bool {
	state := strings.ToUpper(strings.TrimSpace(l.State))
	city := pentity.NormalizeCity(l.City)
	for _, c := range cov {
		if strings.ToUpper(strings.TrimSpace(c.State)) != state {
			continue
		}
		if c.Statewide() || pentity.NormalizeCity(c.City) == city {
			return true
		}
	}
	return false
}

func withinRadius(p *pentity.Provider, l *lentity.Lead) bool {
	if !l.HasLocation() {
		return false
	}
	return Haversine(*p.HomeLat, *p.HomeLng, *l.Lat, *l.Lng) <= *p.ServiceRadius
}
