package routing

import (
	"sort"

	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

// Rank returns a new slice ordered by featured flag, tier rank, most recent
// update, then id. The input is not modified.
func Rank(candidates []*pentity.Provider) []*pentity.Provider {
	out := make([]*pentity.Provider, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b *pentity.Provider) bool {
	if a.IsFeatured != b.IsFeatured {
		return a.IsFeatured
	}
	if ra, rb := a.ListingTier.Rank(), b.ListingTier.Rank(); ra != rb {
		return ra > rb
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}
