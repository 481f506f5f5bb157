package entity

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
)

// NormalizeZip strips spaces and dashes and keeps the first five characters.
// It returns "" for anything that is not five digits after that.
func NormalizeZip(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == ' ' || r == '-' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) > 5 {
		s = s[:5]
	}
	if len(s) != 5 || !allDigits(s) {
		return ""
	}
	return s
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ZipRange is an inclusive range of five-digit ZIP codes.
type ZipRange struct {
	Lo string
	Hi string
}

func (r ZipRange) String() string { return r.Lo + "-" + r.Hi }

// ZipSet is a provider's explicit ZIP list, stored as a comma-joined column.
// Entries are exact ZIPs ("90210", "90210-1234"), prefixes ("902*") or
// inclusive ranges ("90210-90220"). Entries matching none of those forms are
// kept verbatim so they round-trip, but never match a lead. A set with any
// entry counts as declared, even when no entry is usable.
type ZipSet struct {
	exact    map[string]struct{}
	prefixes []string
	ranges   []ZipRange
	invalid  []string
}

// ParseZipSet splits a comma-joined list.
func ParseZipSet(joined string) ZipSet {
	var s ZipSet
	for _, part := range strings.Split(joined, ",") {
		s.add(part)
	}
	return s
}

// NewZipSet builds a set from individual entries.
func NewZipSet(entries ...string) ZipSet {
	return ParseZipSet(strings.Join(entries, ","))
}

func (s *ZipSet) add(raw string) {
	e := strings.TrimSpace(raw)
	if e == "" {
		return
	}
	if p, ok := strings.CutSuffix(e, "*"); ok {
		p = strings.TrimSpace(p)
		if len(p) >= 1 && len(p) <= 4 && allDigits(p) {
			if !containsString(s.prefixes, p) {
				s.prefixes = append(s.prefixes, p)
			}
			return
		}
		s.addInvalid(e)
		return
	}
	if lo, hi, ok := strings.Cut(e, "-"); ok {
		lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
		switch {
		case len(lo) == 5 && len(hi) == 5 && allDigits(lo) && allDigits(hi) && lo <= hi:
			r := ZipRange{Lo: lo, Hi: hi}
			for _, have := range s.ranges {
				if have == r {
					return
				}
			}
			s.ranges = append(s.ranges, r)
			return
		case len(lo) == 5 && len(hi) == 4 && allDigits(lo) && allDigits(hi):
			s.addExact(lo)
			return
		}
		s.addInvalid(e)
		return
	}
	if z := strings.Join(strings.Fields(e), ""); len(z) == 5 && allDigits(z) {
		s.addExact(z)
		return
	}
	s.addInvalid(e)
}

func (s *ZipSet) addExact(z string) {
	if s.exact == nil {
		s.exact = map[string]struct{}{}
	}
	s.exact[z] = struct{}{}
}

func (s *ZipSet) addInvalid(e string) {
	if !containsString(s.invalid, e) {
		s.invalid = append(s.invalid, e)
	}
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Contains reports whether zip is covered by an exact entry, prefix or
// range. A malformed zip never matches.
func (s ZipSet) Contains(zip string) bool {
	z := NormalizeZip(zip)
	if z == "" {
		return false
	}
	if _, ok := s.exact[z]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(z, p) {
			return true
		}
	}
	for _, r := range s.ranges {
		if z >= r.Lo && z <= r.Hi {
			return true
		}
	}
	return false
}

// Declared reports whether the provider listed any entry at all.
func (s ZipSet) Declared() bool {
	return len(s.exact)+len(s.prefixes)+len(s.ranges)+len(s.invalid) > 0
}

// Empty is the inverse of Declared.
func (s ZipSet) Empty() bool { return !s.Declared() }

// Invalid returns the entries that can never match.
func (s ZipSet) Invalid() []string {
	out := append([]string(nil), s.invalid...)
	sort.Strings(out)
	return out
}

// Sorted returns every entry in canonical form: exact ZIPs, then prefixes,
// then ranges, then unusable entries as written.
func (s ZipSet) Sorted() []string {
	out := make([]string, 0, len(s.exact))
	for z := range s.exact {
		out = append(out, z)
	}
	sort.Strings(out)

	prefixes := append([]string(nil), s.prefixes...)
	sort.Strings(prefixes)
	for _, p := range prefixes {
		out = append(out, p+"*")
	}

	ranges := append([]ZipRange(nil), s.ranges...)
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Lo != ranges[j].Lo {
			return ranges[i].Lo < ranges[j].Lo
		}
		return ranges[i].Hi < ranges[j].Hi
	})
	for _, r := range ranges {
		out = append(out, r.String())
	}
	return append(out, s.Invalid()...)
}

func (s ZipSet) String() string { return strings.Join(s.Sorted(), ",") }

// Scan implements sql.Scanner. NULL and blank strings scan to an undeclared set.
func (s *ZipSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = ZipSet{}
	case string:
		*s = ParseZipSet(v)
	case []byte:
		*s = ParseZipSet(string(v))
	default:
		return fmt.Errorf("zipset: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer. An undeclared set is stored as NULL.
func (s ZipSet) Value() (driver.Value, error) {
	if !s.Declared() {
		return nil, nil
	}
	return s.String(), nil
}
