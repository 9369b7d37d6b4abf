package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLookup(t *testing.T) {
	c := testCatalog()

	info, ok := c.Lookup(PlanTraveler)
	require.True(t, ok)
	assert.Equal(t, "price_traveler", info.PriceRef)
	assert.Equal(t, 6, info.DurationMonths)

	_, ok = c.Lookup(Plan("premium"))
	assert.False(t, ok)

	_, ok = c.Lookup(Plan(""))
	assert.False(t, ok)
}

func TestCatalogByPriceRef(t *testing.T) {
	c := testCatalog()

	info, ok := c.ByPriceRef("price_devourer")
	require.True(t, ok)
	assert.Equal(t, PlanDevourer, info.Plan)

	_, ok = c.ByPriceRef("price_unknown")
	assert.False(t, ok)

	_, ok = c.ByPriceRef("")
	assert.False(t, ok)
}

func TestNormalizePlan(t *testing.T) {
	p, ok := NormalizePlan("  Explorer ")
	require.True(t, ok)
	assert.Equal(t, PlanExplorer, p)

	_, ok = NormalizePlan("gold")
	assert.False(t, ok)

	_, ok = NormalizePlan("")
	assert.False(t, ok)
}

func TestNewCatalogFromEnv(t *testing.T) {
	t.Setenv("STRIPE_PRICE_EXPLORER", "price_env_explorer")
	t.Setenv("STRIPE_PRICE_TRAVELER", "price_env_traveler")
	t.Setenv("STRIPE_PRICE_DEVOURER", "price_env_devourer")

	c := NewCatalogFromEnv()

	info, ok := c.Lookup(PlanDevourer)
	require.True(t, ok)
	assert.Equal(t, "price_env_devourer", info.PriceRef)
	assert.Equal(t, 12, info.DurationMonths)
}
