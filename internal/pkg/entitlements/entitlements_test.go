package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mhartwig/shelfmark/app/models"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, PlanTraveler, Normalize(" Traveler "))
	assert.Equal(t, PlanDevourer, Normalize("devourer"))
	assert.Equal(t, PlanFree, Normalize(""))
	assert.Equal(t, PlanFree, Normalize("premium"))
}

func TestLimitsFor(t *testing.T) {
	free := LimitsFor(PlanFree)
	assert.Equal(t, 100, free.MaxBooks)
	assert.False(t, free.CanPostUpdates)

	devourer := LimitsFor(PlanDevourer)
	assert.Equal(t, -1, devourer.MaxBooks)
	assert.True(t, devourer.CanPostUpdates)
}

func TestEffectiveLimitsLapsedSubscription(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	lapsed := &models.User{Plan: "traveler", SubscriptionExpiresAt: &past}
	assert.Equal(t, LimitsFor(PlanFree), EffectiveLimits(lapsed, now))

	active := &models.User{Plan: "traveler", SubscriptionExpiresAt: &future}
	assert.Equal(t, LimitsFor(PlanTraveler), EffectiveLimits(active, now))

	lifetime := &models.User{Plan: "devourer", LifetimeAccess: true}
	assert.Equal(t, LimitsFor(PlanDevourer), EffectiveLimits(lifetime, now))

	assert.Equal(t, LimitsFor(PlanFree), EffectiveLimits(nil, now))
}

func TestWithinLimit(t *testing.T) {
	assert.True(t, WithinLimit(-1, 1_000_000))
	assert.True(t, WithinLimit(3, 2))
	assert.False(t, WithinLimit(3, 3))
}
