package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// stripeGateway implements Gateway against the Stripe API. The client is
// injected so no package-global API key is ever set.
type stripeGateway struct {
	sc *stripe.Client
}

// NewStripeGateway creates a Gateway backed by the given Stripe client.
func NewStripeGateway(sc *stripe.Client) Gateway {
	return &stripeGateway{sc: sc}
}

func (g *stripeGateway) EnsureCustomer(ctx context.Context, e *Entitlement) (string, error) {
	if e.CustomerRef != "" {
		return e.CustomerRef, nil
	}
	cust, err := g.sc.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(e.Email),
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(uint64(e.UserID), 10),
		},
	})
	if err != nil {
		return "", mapStripeError(err)
	}
	return cust.ID, nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	customerRef, err := g.EnsureCustomer(ctx, p.Entitlement)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{
		"user_id": strconv.FormatUint(uint64(p.Entitlement.UserID), 10),
		"plan":    string(p.Plan.Plan),
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerRef),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.Plan.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(p.Entitlement.UserID), 10)),
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: meta,
		},
	}
	params.Metadata = meta

	sess, err := g.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL, CustomerRef: customerRef}, nil
}

func (g *stripeGateway) SubscriptionStatus(ctx context.Context, subscriptionRef string) (string, error) {
	sub, err := g.sc.V1Subscriptions.Retrieve(ctx, subscriptionRef, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return "", mapStripeError(err)
	}
	return string(sub.Status), nil
}

func (g *stripeGateway) SwapPrice(ctx context.Context, subscriptionRef, newPriceRef string) (*PriceSwap, error) {
	sub, err := g.sc.V1Subscriptions.Retrieve(ctx, subscriptionRef, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return nil, mapStripeError(err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("billing: subscription %s has no items", subscriptionRef)
	}
	item := sub.Items.Data[0]
	previousPriceRef := ""
	if item.Price != nil {
		previousPriceRef = item.Price.ID
	}

	updateParams := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(item.ID),
				Price: stripe.String(newPriceRef),
			},
		},
		ProrationBehavior: stripe.String("always_invoice"),
	}
	updateParams.AddExpand("latest_invoice")

	updated, err := g.sc.V1Subscriptions.Update(ctx, subscriptionRef, updateParams)
	if err != nil {
		return nil, mapStripeError(err)
	}

	swap := &PriceSwap{
		SubscriptionRef:  subscriptionRef,
		PreviousPriceRef: previousPriceRef,
		NewPriceRef:      newPriceRef,
	}
	if updated.LatestInvoice != nil {
		swap.InvoiceRef = updated.LatestInvoice.ID
	}
	return swap, nil
}

func (g *stripeGateway) PayInvoice(ctx context.Context, invoiceRef string) error {
	_, err := g.sc.V1Invoices.Pay(ctx, invoiceRef, &stripe.InvoicePayParams{})
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *stripeGateway) RevertPrice(ctx context.Context, subscriptionRef, priceRef string) error {
	sub, err := g.sc.V1Subscriptions.Retrieve(ctx, subscriptionRef, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return mapStripeError(err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("billing: subscription %s has no items", subscriptionRef)
	}

	_, err = g.sc.V1Subscriptions.Update(ctx, subscriptionRef, &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceRef),
			},
		},
		ProrationBehavior: stripe.String("none"),
	})
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *stripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error {
	_, err := g.sc.V1Subscriptions.Update(ctx, subscriptionRef, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *stripeGateway) ListInvoices(ctx context.Context, customerRef string, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 24
	}
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerRef),
	}
	params.Limit = stripe.Int64(int64(limit))

	var out []Invoice
	for inv, err := range g.sc.V1Invoices.List(ctx, params) {
		if err != nil {
			return nil, mapStripeError(err)
		}
		out = append(out, Invoice{
			Ref:        inv.ID,
			Number:     inv.Number,
			Status:     string(inv.Status),
			Currency:   string(inv.Currency),
			AmountDue:  inv.AmountDue,
			AmountPaid: inv.AmountPaid,
			CreatedAt:  time.Unix(inv.Created, 0),
			HostedURL:  inv.HostedInvoiceURL,
			PDFURL:     inv.InvoicePDF,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mapStripeError maps provider errors onto the billing error taxonomy.
// Card declines are the caller's problem; everything transport-shaped is
// ErrProviderUnavailable so callers can tell retryable from terminal.
func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %s", ErrPaymentFailed, stripeErr.Code)
		case stripeErr.Code == stripe.ErrorCodeCardDeclined:
			return fmt.Errorf("%w: %s", ErrPaymentFailed, stripeErr.Code)
		case stripeErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		case stripeErr.Type == stripe.ErrorTypeAPI:
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	// Anything that is not a structured Stripe error is a transport failure.
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
