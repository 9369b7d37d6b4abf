package billing

import (
	"context"
	"time"
)

// CheckoutParams carries everything needed to open a hosted checkout page.
type CheckoutParams struct {
	Entitlement *Entitlement
	Plan        PlanInfo
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the provider-hosted payment page reference.
type CheckoutSession struct {
	ID          string
	URL         string
	CustomerRef string
}

// PriceSwap is the result of an in-place plan change. PreviousPriceRef is
// kept so a failed proration charge can be reverted.
type PriceSwap struct {
	SubscriptionRef  string
	PreviousPriceRef string
	NewPriceRef      string
	InvoiceRef       string
}

// Invoice is a read model for the user-facing billing history.
type Invoice struct {
	Ref        string
	Number     string
	Status     string
	Currency   string
	AmountDue  int64
	AmountPaid int64
	CreatedAt  time.Time
	HostedURL  string
	PDFURL     string
}

// Gateway abstracts the payment provider. The production implementation
// talks to Stripe; tests substitute a fake.
type Gateway interface {
	// EnsureCustomer returns the provider customer ref for the user,
	// creating one when the entitlement has none yet.
	EnsureCustomer(ctx context.Context, e *Entitlement) (string, error)
	// CreateCheckoutSession opens a hosted subscription checkout carrying
	// the user id and plan as correlation metadata.
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	// SubscriptionStatus reports the provider-side status of a subscription.
	SubscriptionStatus(ctx context.Context, subscriptionRef string) (string, error)
	// SwapPrice changes the subscription to the new price in place with an
	// immediate proration invoice.
	SwapPrice(ctx context.Context, subscriptionRef, newPriceRef string) (*PriceSwap, error)
	// PayInvoice attempts a synchronous charge of the given invoice.
	// A declined payment maps to ErrPaymentFailed.
	PayInvoice(ctx context.Context, invoiceRef string) error
	// RevertPrice puts the subscription back on the previous price without
	// generating another proration charge.
	RevertPrice(ctx context.Context, subscriptionRef, priceRef string) error
	// CancelAtPeriodEnd schedules termination at the end of the paid period.
	CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error
	// ListInvoices returns the most recent invoices for the customer.
	ListInvoices(ctx context.Context, customerRef string, limit int) ([]Invoice, error)
}
