package alerts

import "strings"

// Tier is the endemic severity class that selects which rules apply
type Tier string

const (
	// TierAny marks a rule that applies regardless of the record's tier.
	TierAny             Tier = ""
	TierElimination     Tier = "Elimination"
	TierLowEndemic      Tier = "LowEndemic"
	TierModerateEndemic Tier = "ModerateEndemic"
	TierHighEndemic     Tier = "HighEndemic"
)

// FallbackTier is used for labels that match no keyword.
const FallbackTier = TierModerateEndemic

// tierKeywords is checked in order; the first contained keyword wins.
var tierKeywords = []struct {
	keyword string
	tier    Tier
}{
	{"Eliminasi", TierElimination},
	{"Endemis Rendah", TierLowEndemic},
	{"Endemis Sedang", TierModerateEndemic},
	{"Endemis Tinggi", TierHighEndemic},
}

// ClassifyTier maps an endemic status label to a tier, falling back to
// ModerateEndemic.
func ClassifyTier(label string) Tier {
	tier, _ := MatchTier(label)
	return tier
}

// MatchTier is ClassifyTier that also reports whether a keyword matched.
// Matching is case-sensitive.
func MatchTier(label string) (Tier, bool) {
	for _, k := range tierKeywords {
		if strings.Contains(label, k.keyword) {
			return k.tier, true
		}
	}
	return FallbackTier, false
}

// IsValid reports whether t is a known tier (TierAny included)
func (t Tier) IsValid() bool {
	switch t {
	case TierAny, TierElimination, TierLowEndemic, TierModerateEndemic, TierHighEndemic:
		return true
	default:
		return false
	}
}

// Matches reports whether a rule scoped to t applies to a record of tier other
func (t Tier) Matches(other Tier) bool {
	return t == TierAny || t == other
}
