package billing

import (
	"strings"

	"github.com/mhartwig/shelfmark/internal/pkg/env"
)

// Plan identifies a paid subscription tier. The empty string means free tier.
type Plan string

const (
	PlanExplorer Plan = "explorer"
	PlanTraveler Plan = "traveler"
	PlanDevourer Plan = "devourer"
)

// PlanInfo describes a catalog entry: the Stripe price backing the plan and
// how long one paid period lasts.
type PlanInfo struct {
	Plan           Plan
	PriceRef       string
	DurationMonths int
}

// Catalog maps plan identifiers to their provider price refs and durations.
// Immutable after construction.
type Catalog struct {
	plans map[Plan]PlanInfo
}

// NewCatalog builds a catalog from explicit entries.
func NewCatalog(infos ...PlanInfo) *Catalog {
	c := &Catalog{plans: make(map[Plan]PlanInfo, len(infos))}
	for _, info := range infos {
		c.plans[info.Plan] = info
	}
	return c
}

// NewCatalogFromEnv builds the standard three-tier catalog with price refs
// taken from the environment.
func NewCatalogFromEnv() *Catalog {
	return NewCatalog(
		PlanInfo{Plan: PlanExplorer, PriceRef: env.GetEnv("STRIPE_PRICE_EXPLORER", ""), DurationMonths: 3},
		PlanInfo{Plan: PlanTraveler, PriceRef: env.GetEnv("STRIPE_PRICE_TRAVELER", ""), DurationMonths: 6},
		PlanInfo{Plan: PlanDevourer, PriceRef: env.GetEnv("STRIPE_PRICE_DEVOURER", ""), DurationMonths: 12},
	)
}

// Lookup resolves a plan identifier to its catalog entry.
func (c *Catalog) Lookup(p Plan) (PlanInfo, bool) {
	info, ok := c.plans[p]
	return info, ok
}

// ByPriceRef resolves a provider price ref back to its catalog entry.
func (c *Catalog) ByPriceRef(ref string) (PlanInfo, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return PlanInfo{}, false
	}
	for _, info := range c.plans {
		if info.PriceRef == ref {
			return info, true
		}
	}
	return PlanInfo{}, false
}

// NormalizePlan maps a raw string to a known plan identifier.
func NormalizePlan(raw string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanExplorer:
		return PlanExplorer, true
	case PlanTraveler:
		return PlanTraveler, true
	case PlanDevourer:
		return PlanDevourer, true
	default:
		return "", false
	}
}
