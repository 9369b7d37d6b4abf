package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitlementIsActive(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	assert.False(t, (&Entitlement{}).IsActive(now))
	assert.False(t, (&Entitlement{ExpiresAt: &past}).IsActive(now))
	assert.True(t, (&Entitlement{ExpiresAt: &future}).IsActive(now))
	assert.True(t, (&Entitlement{LifetimeAccess: true}).IsActive(now))

	// Boundary: expiry must be strictly in the future.
	assert.False(t, (&Entitlement{ExpiresAt: &now}).IsActive(now))

	var nilEnt *Entitlement
	assert.False(t, nilEnt.IsActive(now))
}

func TestEntitlementState(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)

	e := &Entitlement{}
	assert.Equal(t, StateFree, e.State(now))

	e = &Entitlement{Plan: PlanTraveler, ExpiresAt: &future, SubscriptionRef: "sub_1"}
	assert.Equal(t, StateActive, e.State(now))

	e.CancelAtPeriodEnd = true
	assert.Equal(t, StatePendingCancellation, e.State(now))

	// An expired row never reports a paid state, whatever the other fields say.
	past := now.Add(-time.Hour)
	e.ExpiresAt = &past
	assert.Equal(t, StateFree, e.State(now))
}

func TestActivateSetsAllFieldsTogether(t *testing.T) {
	e := &Entitlement{UserID: 1, Email: "reader@example.com"}
	expiry := time.Now().AddDate(0, 6, 0)

	require.NoError(t, e.Activate(PlanTraveler, expiry, "cus_1", "sub_1"))

	assert.Equal(t, PlanTraveler, e.Plan)
	require.NotNil(t, e.ExpiresAt)
	assert.True(t, e.ExpiresAt.Equal(expiry))
	assert.Equal(t, "cus_1", e.CustomerRef)
	assert.Equal(t, "sub_1", e.SubscriptionRef)
	assert.False(t, e.CancelAtPeriodEnd)
}

func TestActivateRejectsPartialInput(t *testing.T) {
	e := &Entitlement{UserID: 1}
	expiry := time.Now().AddDate(0, 3, 0)

	assert.Error(t, e.Activate("", expiry, "cus_1", "sub_1"))
	assert.Error(t, e.Activate(PlanExplorer, time.Time{}, "cus_1", "sub_1"))
	assert.Error(t, e.Activate(PlanExplorer, expiry, "cus_1", ""))

	// Nothing leaked into the row from the rejected transitions.
	assert.Empty(t, e.Plan)
	assert.Nil(t, e.ExpiresAt)
	assert.Empty(t, e.SubscriptionRef)
}

func TestActivateClearsPendingCancellation(t *testing.T) {
	future := time.Now().AddDate(0, 3, 0)
	e := &Entitlement{
		UserID:            1,
		Plan:              PlanExplorer,
		ExpiresAt:         &future,
		CustomerRef:       "cus_1",
		SubscriptionRef:   "sub_1",
		CancelAtPeriodEnd: true,
	}

	require.NoError(t, e.Activate(PlanDevourer, time.Now().AddDate(0, 12, 0), "cus_1", "sub_1"))
	assert.False(t, e.CancelAtPeriodEnd)
}

func TestScheduleCancellationRequiresSubscription(t *testing.T) {
	e := &Entitlement{UserID: 1}
	assert.ErrorIs(t, e.ScheduleCancellation(), ErrNoActiveSubscription)

	future := time.Now().AddDate(0, 6, 0)
	e = &Entitlement{UserID: 1, Plan: PlanTraveler, ExpiresAt: &future, SubscriptionRef: "sub_1"}
	require.NoError(t, e.ScheduleCancellation())
	assert.True(t, e.CancelAtPeriodEnd)

	// Access is unchanged until the provider finalizes.
	assert.True(t, e.IsActive(time.Now()))
}

func TestExpireRevertsToFreeTier(t *testing.T) {
	future := time.Now().AddDate(0, 6, 0)
	e := &Entitlement{
		UserID:            1,
		Plan:              PlanTraveler,
		ExpiresAt:         &future,
		CustomerRef:       "cus_1",
		SubscriptionRef:   "sub_1",
		CancelAtPeriodEnd: true,
	}

	at := time.Now()
	require.NoError(t, e.Expire(at))

	assert.Empty(t, e.Plan)
	require.NotNil(t, e.ExpiresAt)
	assert.True(t, e.ExpiresAt.Equal(at))
	assert.Empty(t, e.SubscriptionRef)
	assert.False(t, e.CancelAtPeriodEnd)
	assert.False(t, e.IsActive(at.Add(time.Second)))

	// Customer ref survives for future billing operations.
	assert.Equal(t, "cus_1", e.CustomerRef)
}

func TestMatches(t *testing.T) {
	future := time.Now().AddDate(0, 6, 0)
	e := &Entitlement{
		Plan:            PlanTraveler,
		ExpiresAt:       &future,
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
	}

	assert.True(t, e.Matches(PlanTraveler, "cus_1", "sub_1"))
	assert.True(t, e.Matches(PlanTraveler, "", "sub_1"))
	assert.False(t, e.Matches(PlanDevourer, "cus_1", "sub_1"))
	assert.False(t, e.Matches(PlanTraveler, "cus_2", "sub_1"))
	assert.False(t, e.Matches(PlanTraveler, "cus_1", "sub_2"))

	e.ExpiresAt = nil
	assert.False(t, e.Matches(PlanTraveler, "cus_1", "sub_1"))
}

func TestClone(t *testing.T) {
	future := time.Now().AddDate(0, 6, 0)
	e := &Entitlement{UserID: 1, Plan: PlanTraveler, ExpiresAt: &future}

	c := e.Clone()
	c.Plan = PlanDevourer
	*c.ExpiresAt = c.ExpiresAt.AddDate(0, 6, 0)

	assert.Equal(t, PlanTraveler, e.Plan)
	assert.True(t, e.ExpiresAt.Equal(future))
}
