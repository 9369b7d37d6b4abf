package billing

import (
	"context"
	"errors"
	"log"
	"time"
)

const providerCallTimeout = 15 * time.Second

// CheckoutResult is the outcome of StartOrChangeSubscription. Either the
// caller must redirect the user to the provider's hosted page, or the plan
// change already completed synchronously.
type CheckoutResult struct {
	RedirectURL string
	Immediate   bool
	Entitlement *Entitlement
}

// CancellationConfirmation reports when a soft-cancelled subscription stops
// granting access.
type CancellationConfirmation struct {
	EffectiveAt *time.Time
}

// Service implements the subscription lifecycle: new checkouts, in-place
// plan changes with synchronous proration payment, soft cancellation and
// entitlement queries.
type Service struct {
	store   Store
	gateway Gateway
	catalog *Catalog
	now     func() time.Time
}

// NewService creates a billing service from injected collaborators.
func NewService(store Store, gateway Gateway, catalog *Catalog) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		catalog: catalog,
		now:     time.Now,
	}
}

// Catalog exposes the plan catalog for handlers rendering plan pages.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// GetEntitlement loads the user's current entitlement.
func (s *Service) GetEntitlement(ctx context.Context, userID uint) (*Entitlement, error) {
	return s.store.GetEntitlement(ctx, userID)
}

// IsUserActive reports whether the user currently holds an active paid plan.
func (s *Service) IsUserActive(ctx context.Context, userID uint) (bool, error) {
	e, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	return e.IsActive(s.now()), nil
}

// StartOrChangeSubscription starts a new subscription via hosted checkout,
// or changes the plan in place when the user already has an active
// subscription at the provider. The in-place path charges the prorated
// difference synchronously and rolls the price back if collection fails, so
// a failed change never costs the user money or state.
func (s *Service) StartOrChangeSubscription(ctx context.Context, userID uint, requested Plan, successURL, cancelURL string) (*CheckoutResult, error) {
	info, ok := s.catalog.Lookup(requested)
	if !ok {
		return nil, ErrInvalidPlan
	}

	ent, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ent.SubscriptionRef != "" {
		active, err := s.subscriptionActiveAtProvider(ctx, ent.SubscriptionRef)
		if err != nil {
			return nil, err
		}
		if active {
			return s.changePlanInPlace(ctx, ent, info)
		}
		// The local ref points at a lapsed subscription. Treat this like a
		// first-time subscriber and let the webhook overwrite the stale ref.
	}

	return s.startCheckout(ctx, ent, info, successURL, cancelURL)
}

func (s *Service) startCheckout(ctx context.Context, ent *Entitlement, info PlanInfo, successURL, cancelURL string) (*CheckoutResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	sess, err := s.gateway.CreateCheckoutSession(callCtx, CheckoutParams{
		Entitlement: ent,
		Plan:        info,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
	})
	if err != nil {
		return nil, err
	}

	// Persist a freshly created customer ref so future operations reuse it.
	// Entitlement fields stay untouched until the provider confirms payment.
	if sess.CustomerRef != "" && sess.CustomerRef != ent.CustomerRef {
		if _, err := s.saveWithRetry(ctx, ent.UserID, func(e *Entitlement) error {
			return e.AttachCustomer(sess.CustomerRef)
		}); err != nil {
			log.Printf("[Billing] WARN: attach customer ref for user %d: %v", ent.UserID, err)
		}
	}

	return &CheckoutResult{RedirectURL: sess.URL}, nil
}

func (s *Service) changePlanInPlace(ctx context.Context, ent *Entitlement, info PlanInfo) (*CheckoutResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	swap, err := s.gateway.SwapPrice(callCtx, ent.SubscriptionRef, info.PriceRef)
	if err != nil {
		return nil, err
	}

	if swap.InvoiceRef != "" {
		payCtx, cancelPay := context.WithTimeout(ctx, providerCallTimeout)
		err = s.gateway.PayInvoice(payCtx, swap.InvoiceRef)
		cancelPay()
		if err != nil {
			s.revertSwap(ctx, swap)
			if errors.Is(err, ErrPaymentFailed) {
				return nil, err
			}
			// Timeouts and transport failures also leave the swap reverted
			// so provider state matches the unmutated local row.
			return nil, err
		}
	}

	expiresAt := s.now().AddDate(0, info.DurationMonths, 0)
	updated, err := s.saveWithRetry(ctx, ent.UserID, func(e *Entitlement) error {
		return e.Activate(info.Plan, expiresAt, e.CustomerRef, swap.SubscriptionRef)
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{Immediate: true, Entitlement: updated}, nil
}

// revertSwap undoes a price change whose proration invoice could not be
// collected. Runs on a fresh bounded context so it still executes when the
// request context is already cancelled.
func (s *Service) revertSwap(ctx context.Context, swap *PriceSwap) {
	if swap.PreviousPriceRef == "" {
		log.Printf("[Billing] ERROR: cannot revert price swap on %s, previous price unknown", swap.SubscriptionRef)
		return
	}
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), providerCallTimeout)
	defer cancel()
	if err := s.gateway.RevertPrice(revertCtx, swap.SubscriptionRef, swap.PreviousPriceRef); err != nil {
		log.Printf("[Billing] ERROR: revert price swap on %s to %s: %v", swap.SubscriptionRef, swap.PreviousPriceRef, err)
	}
}

func (s *Service) subscriptionActiveAtProvider(ctx context.Context, subscriptionRef string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	status, err := s.gateway.SubscriptionStatus(callCtx, subscriptionRef)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return false, err
		}
		// The subscription no longer exists at the provider. Fall back to
		// the new-checkout path.
		return false, nil
	}
	switch status {
	case "active", "trialing", "past_due":
		return true, nil
	default:
		return false, nil
	}
}

// RequestCancellation schedules end-of-period termination at the provider.
// Access is intentionally untouched; the Cancelled webhook finalizes the
// downgrade when the paid period actually ends.
func (s *Service) RequestCancellation(ctx context.Context, userID uint) (*CancellationConfirmation, error) {
	ent, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ent.SubscriptionRef == "" {
		return nil, ErrNoActiveSubscription
	}

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()
	if err := s.gateway.CancelAtPeriodEnd(callCtx, ent.SubscriptionRef); err != nil {
		return nil, err
	}

	updated, err := s.saveWithRetry(ctx, userID, func(e *Entitlement) error {
		return e.ScheduleCancellation()
	})
	if err != nil {
		return nil, err
	}

	return &CancellationConfirmation{EffectiveAt: updated.ExpiresAt}, nil
}

// ListInvoices returns the user's billing history from the provider.
func (s *Service) ListInvoices(ctx context.Context, userID uint, limit int) ([]Invoice, error) {
	ent, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ent.CustomerRef == "" {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()
	return s.gateway.ListInvoices(callCtx, ent.CustomerRef, limit)
}

func (s *Service) saveWithRetry(ctx context.Context, userID uint, mutate func(*Entitlement) error) (*Entitlement, error) {
	return saveEntitlementWithRetry(ctx, s.store, userID, mutate)
}
