package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store Store, gw Gateway) *Service {
	return NewService(store, gw, testCatalog())
}

func freeUser(id uint, email string) *Entitlement {
	return &Entitlement{UserID: id, Email: email}
}

func paidUser(id uint, plan Plan, expiresIn time.Duration) *Entitlement {
	exp := time.Now().Add(expiresIn)
	return &Entitlement{
		UserID:          id,
		Email:           "reader@example.com",
		Plan:            plan,
		ExpiresAt:       &exp,
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
	}
}

func TestStartSubscriptionInvalidPlan(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	svc := newTestService(store, &fakeGateway{})

	_, err := svc.StartOrChangeSubscription(context.Background(), 1, Plan("gold"), "https://s", "https://c")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestStartSubscriptionUnknownUser(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeGateway{})

	_, err := svc.StartOrChangeSubscription(context.Background(), 7, PlanTraveler, "https://s", "https://c")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStartSubscriptionNewUserGetsRedirect(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	gw := &fakeGateway{checkoutURL: "https://pay.example/cs_test", checkoutCustomer: "cus_new"}
	svc := newTestService(store, gw)

	res, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanTraveler, "https://s", "https://c")
	require.NoError(t, err)
	assert.False(t, res.Immediate)
	assert.Equal(t, "https://pay.example/cs_test", res.RedirectURL)

	// No entitlement granted before the provider confirms payment. Only the
	// freshly created customer ref is persisted for reuse.
	row := store.snapshot(1)
	assert.Empty(t, row.Plan)
	assert.Nil(t, row.ExpiresAt)
	assert.Empty(t, row.SubscriptionRef)
	assert.Equal(t, "cus_new", row.CustomerRef)
}

func TestStartSubscriptionProviderDown(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	gw := &fakeGateway{checkoutErr: ErrProviderUnavailable}
	svc := newTestService(store, gw)

	before := store.snapshot(1)
	_, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanTraveler, "https://s", "https://c")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, before, store.snapshot(1))
}

func TestChangePlanImmediateSuccess(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	gw := &fakeGateway{status: "active"}
	svc := newTestService(store, gw)

	res, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanDevourer, "https://s", "https://c")
	require.NoError(t, err)
	require.True(t, res.Immediate)

	row := store.snapshot(1)
	assert.Equal(t, PlanDevourer, row.Plan)
	require.NotNil(t, row.ExpiresAt)

	// Duration resets from the moment of payment, it is not added to the
	// remaining explorer time.
	expected := time.Now().AddDate(0, 12, 0)
	assert.WithinDuration(t, expected, *row.ExpiresAt, time.Minute)

	assert.Equal(t, []string{"subscription_status", "swap_price", "pay_invoice"}, gw.calledWith())
}

func TestChangePlanPaymentFailureRollsBack(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	gw := &fakeGateway{status: "active", payErr: ErrPaymentFailed}
	svc := newTestService(store, gw)

	before := store.snapshot(1)
	_, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanDevourer, "https://s", "https://c")
	assert.ErrorIs(t, err, ErrPaymentFailed)

	// The row is byte-identical: no partial state survives a failed charge.
	assert.Equal(t, before, store.snapshot(1))

	calls := gw.calledWith()
	assert.Contains(t, calls, "revert_price")
	assert.Equal(t, "pay_invoice", calls[len(calls)-2])
	assert.Equal(t, "revert_price", calls[len(calls)-1])
}

func TestChangePlanProviderTimeoutStillRollsBack(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	gw := &fakeGateway{status: "active", payErr: ErrProviderUnavailable}
	svc := newTestService(store, gw)

	before := store.snapshot(1)
	_, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanDevourer, "https://s", "https://c")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, before, store.snapshot(1))
	assert.Contains(t, gw.calledWith(), "revert_price")
}

func TestChangePlanNoInvoiceSkipsPayment(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	gw := &fakeGateway{
		status: "active",
		swap:   &PriceSwap{SubscriptionRef: "sub_1", PreviousPriceRef: "price_explorer", NewPriceRef: "price_devourer"},
	}
	svc := newTestService(store, gw)

	res, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanDevourer, "https://s", "https://c")
	require.NoError(t, err)
	assert.True(t, res.Immediate)
	assert.NotContains(t, gw.calledWith(), "pay_invoice")
}

func TestChangePlanLapsedSubscriptionFallsBackToCheckout(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	gw := &fakeGateway{status: "canceled", checkoutURL: "https://pay.example/cs_test"}
	svc := newTestService(store, gw)

	res, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanTraveler, "https://s", "https://c")
	require.NoError(t, err)
	assert.False(t, res.Immediate)
	assert.Equal(t, "https://pay.example/cs_test", res.RedirectURL)

	calls := gw.calledWith()
	assert.Contains(t, calls, "create_checkout")
	assert.NotContains(t, calls, "swap_price")
}

func TestChangePlanStatusCheckProviderDown(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	gw := &fakeGateway{statusErr: ErrProviderUnavailable}
	svc := newTestService(store, gw)

	_, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanTraveler, "https://s", "https://c")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotContains(t, gw.calledWith(), "create_checkout")
}

func TestChangePlanRetriesConcurrentModificationOnce(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	store.saveErr = ErrConcurrentModification
	store.saveErrTimes = 1
	gw := &fakeGateway{status: "active"}
	svc := newTestService(store, gw)

	res, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanDevourer, "https://s", "https://c")
	require.NoError(t, err)
	assert.True(t, res.Immediate)
	assert.Equal(t, PlanDevourer, store.snapshot(1).Plan)
}

func TestChangePlanSurfacesPersistentConflict(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanExplorer, 30*24*time.Hour))
	store.saveErr = ErrConcurrentModification
	store.saveErrTimes = -1
	gw := &fakeGateway{status: "active"}
	svc := newTestService(store, gw)

	_, err := svc.StartOrChangeSubscription(context.Background(), 1, PlanDevourer, "https://s", "https://c")
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestRequestCancellationWithoutSubscription(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	svc := newTestService(store, &fakeGateway{})

	_, err := svc.RequestCancellation(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestRequestCancellationKeepsAccessUntilPeriodEnd(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	conf, err := svc.RequestCancellation(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, conf.EffectiveAt)
	assert.Equal(t, []string{"cancel_at_period_end"}, gw.calledWith())

	row := store.snapshot(1)
	assert.True(t, row.CancelAtPeriodEnd)
	assert.Equal(t, PlanTraveler, row.Plan)
	assert.True(t, row.IsActive(time.Now()))
	assert.True(t, conf.EffectiveAt.Equal(*row.ExpiresAt))

	active, err := svc.IsUserActive(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestRequestCancellationProviderDown(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	gw := &fakeGateway{cancelErr: ErrProviderUnavailable}
	svc := newTestService(store, gw)

	before := store.snapshot(1)
	_, err := svc.RequestCancellation(context.Background(), 1)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, before, store.snapshot(1))
}

func TestListInvoicesWithoutCustomerRef(t *testing.T) {
	store := newFakeStore(freeUser(1, "reader@example.com"))
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	invoices, err := svc.ListInvoices(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Empty(t, gw.calledWith())
}

func TestListInvoices(t *testing.T) {
	store := newFakeStore(paidUser(1, PlanTraveler, 90*24*time.Hour))
	gw := &fakeGateway{invoices: []Invoice{{Ref: "in_1", Status: "paid", AmountPaid: 999}}}
	svc := newTestService(store, gw)

	invoices, err := svc.ListInvoices(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "in_1", invoices[0].Ref)
}

func TestIsUserActive(t *testing.T) {
	store := newFakeStore(
		freeUser(1, "free@example.com"),
		paidUser(2, PlanDevourer, 24*time.Hour),
	)
	svc := newTestService(store, &fakeGateway{})

	active, err := svc.IsUserActive(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = svc.IsUserActive(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, active)
}
