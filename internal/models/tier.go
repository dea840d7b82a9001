package models

// Tier is the subscription level gating feature access.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var tierRanks = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierEnterprise: 2,
}

// Rank gives the ordinal position of a tier. Unknown values rank as free.
func (t Tier) Rank() int {
	return tierRanks[t]
}

// AtLeast reports whether t grants everything min does.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

// ValidTier reports whether v is one of the three enumerated tiers.
func ValidTier(v string) bool {
	_, ok := tierRanks[Tier(v)]
	return ok
}
