package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentEvent(id string, userID uint, plan Plan) *ProviderEvent {
	return &ProviderEvent{
		ID:   id,
		Type: "checkout.session.completed",
		Kind: KindPaymentConfirmed,
		Payment: &PaymentConfirmed{
			UserID:          userID,
			Plan:            plan,
			CustomerRef:     "cus_1",
			SubscriptionRef: "sub_1",
			Email:           "reader@example.com",
		},
		RawBody: []byte(`{}`),
	}
}

func TestPaymentConfirmedActivatesEntitlement(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	r := NewReconciler(store, testCatalog())

	require.NoError(t, r.ApplyProviderEvent(context.Background(), paymentEvent("evt_1", 1, PlanTraveler)))

	row := store.snapshot(1)
	assert.Equal(t, PlanTraveler, row.Plan)
	assert.Equal(t, "cus_1", row.CustomerRef)
	assert.Equal(t, "sub_1", row.SubscriptionRef)
	require.NotNil(t, row.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 6, 0), *row.ExpiresAt, time.Minute)
	assert.True(t, row.IsActive(time.Now()))
}

func TestPaymentConfirmedRedeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	r := NewReconciler(store, testCatalog())

	require.NoError(t, r.ApplyProviderEvent(context.Background(), paymentEvent("evt_1", 1, PlanTraveler)))
	after := store.snapshot(1)

	require.NoError(t, r.ApplyProviderEvent(context.Background(), paymentEvent("evt_1", 1, PlanTraveler)))

	// Same final state, expiry not pushed forward by the redelivery.
	redelivered := store.snapshot(1)
	assert.Equal(t, after.Plan, redelivered.Plan)
	assert.True(t, after.ExpiresAt.Equal(*redelivered.ExpiresAt))
	assert.Equal(t, after.Version, redelivered.Version)
}

func TestPaymentConfirmedUnknownUserRejected(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, testCatalog())

	// Rejected so the provider redelivers, unlike unmatched refunds.
	err := r.ApplyProviderEvent(context.Background(), paymentEvent("evt_1", 99, PlanTraveler))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPaymentConfirmedUnknownPlanAcked(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	r := NewReconciler(store, testCatalog())

	ev := paymentEvent("evt_1", 1, Plan("gold"))
	assert.NoError(t, r.ApplyProviderEvent(context.Background(), ev))
	assert.Empty(t, store.snapshot(1).Plan)
}

func TestRefundExpiresEntitlement(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	r := NewReconciler(store, testCatalog())

	ev := &ProviderEvent{
		ID:     "evt_1",
		Type:   "charge.refunded",
		Kind:   KindRefunded,
		Refund: &Refunded{CustomerRef: "cus_1", Email: "reader@example.com"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))

	row := store.snapshot(1)
	assert.Empty(t, row.Plan)
	assert.Empty(t, row.SubscriptionRef)
	assert.Equal(t, "cus_1", row.CustomerRef)
	assert.False(t, row.IsActive(time.Now()))
}

func TestRefundCustomerRefTakesPrecedenceOverEmail(t *testing.T) {
	// Same user reachable through both lookup paths.
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	r := NewReconciler(store, testCatalog())

	var fired []string
	r.lookupFired = func(path string) { fired = append(fired, path) }

	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindRefunded,
		Refund: &Refunded{CustomerRef: "cus_1", Email: "reader@example.com"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))

	assert.Equal(t, []string{"customer_ref"}, fired)
}

func TestRefundEmailFallback(t *testing.T) {
	user := paidUser(1, PlanTraveler, 90*24*time.Hour)
	user.CustomerRef = ""
	store := newFakeStore(user)
	r := NewReconciler(store, testCatalog())

	var fired []string
	r.lookupFired = func(path string) { fired = append(fired, path) }

	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindRefunded,
		Refund: &Refunded{CustomerRef: "cus_gone", Email: "reader@example.com"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))

	assert.Equal(t, []string{"email"}, fired)
	assert.False(t, store.snapshot(1).IsActive(time.Now()))
}

func TestRefundEmailFallbackIgnoresCase(t *testing.T) {
	user := paidUser(1, PlanTraveler, 90*24*time.Hour)
	user.CustomerRef = ""
	user.Email = "Reader@Example.com"
	store := newFakeStore(user)
	r := NewReconciler(store, testCatalog())

	// The parser lowercases billing emails, the stored row keeps its casing.
	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindRefunded,
		Refund: &Refunded{Email: "reader@example.com"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))

	assert.False(t, store.snapshot(1).IsActive(time.Now()))
}

func TestRefundMatchingNoUserIsAcked(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	r := NewReconciler(store, testCatalog())

	before := store.snapshot(1)
	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindRefunded,
		Refund: &Refunded{CustomerRef: "cus_nobody", Email: "nobody@example.com"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))
	assert.Equal(t, before, store.snapshot(1))
}

func TestCancelledFinalizesSoftCancel(t *testing.T) {
	user := paidUser(1, PlanTraveler, 90*24*time.Hour)
	user.CancelAtPeriodEnd = true
	store := newFakeStore(user)
	r := NewReconciler(store, testCatalog())

	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindCancelled,
		Cancel: &Cancelled{SubscriptionRef: "sub_1", CustomerRef: "cus_1"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))

	row := store.snapshot(1)
	assert.Empty(t, row.Plan)
	assert.Empty(t, row.SubscriptionRef)
	assert.False(t, row.CancelAtPeriodEnd)
	assert.False(t, row.IsActive(time.Now()))
}

func TestCancelledFallsBackToCustomerRef(t *testing.T) {
	user := paidUser(1, PlanTraveler, 90*24*time.Hour)
	user.SubscriptionRef = "sub_other"
	store := newFakeStore(user)
	r := NewReconciler(store, testCatalog())

	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindCancelled,
		Cancel: &Cancelled{SubscriptionRef: "sub_unknown", CustomerRef: "cus_1"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))
	assert.False(t, store.snapshot(1).IsActive(time.Now()))
}

func TestCancelledRedeliveryIsNoOp(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	r := NewReconciler(store, testCatalog())

	ev := &ProviderEvent{
		ID:     "evt_1",
		Kind:   KindCancelled,
		Cancel: &Cancelled{SubscriptionRef: "sub_1", CustomerRef: "cus_1"},
	}
	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))
	after := store.snapshot(1)

	require.NoError(t, r.ApplyProviderEvent(context.Background(), ev))
	assert.Equal(t, after, store.snapshot(1))
}

func TestIgnoredEventKindAcked(t *testing.T) {
	r := NewReconciler(newFakeStore(), testCatalog())

	ev := &ProviderEvent{ID: "evt_1", Type: "invoice.finalized", Kind: KindIgnored}
	assert.NoError(t, r.ApplyProviderEvent(context.Background(), ev))
}

func TestTransientStoreFailureRejectsEvent(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	store.saveErr = errors.New("connection reset")
	store.saveErrTimes = -1
	r := NewReconciler(store, testCatalog())

	err := r.ApplyProviderEvent(context.Background(), paymentEvent("evt_1", 1, PlanTraveler))
	assert.Error(t, err)
}

func TestProcessWebhookRecordsAndDeduplicates(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	r := NewReconciler(store, testCatalog())

	ev := paymentEvent("evt_1", 1, PlanTraveler)
	require.NoError(t, r.ProcessWebhook(context.Background(), ev))

	stored := store.events[ProviderName+":evt_1"]
	require.NotNil(t, stored)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ProcessingError)

	versionAfterFirst := store.snapshot(1).Version

	// Redelivery of a processed event short-circuits before the handler.
	require.NoError(t, r.ProcessWebhook(context.Background(), ev))
	assert.Equal(t, versionAfterFirst, store.snapshot(1).Version)
}

func TestProcessWebhookRecordsFailure(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	store.saveErr = errors.New("connection reset")
	store.saveErrTimes = -1
	r := NewReconciler(store, testCatalog())

	err := r.ProcessWebhook(context.Background(), paymentEvent("evt_1", 1, PlanTraveler))
	require.Error(t, err)

	stored := store.events[ProviderName+":evt_1"]
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.ProcessingError)

	// The provider redelivers; once the store recovers the event applies.
	store.saveErrTimes = 0
	require.NoError(t, r.ProcessWebhook(context.Background(), paymentEvent("evt_1", 1, PlanTraveler)))
	assert.Equal(t, PlanTraveler, store.snapshot(1).Plan)
}
