package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mhartwig/shelfmark/app/models"
)

// Reconciler applies verified provider events to local entitlement state.
// It is the source-of-truth finalizer: webhook deliveries may arrive late,
// out of order, or more than once, and every handler here must converge on
// the same final state regardless.
type Reconciler struct {
	store   Store
	catalog *Catalog
	now     func() time.Time

	// lookupFired observes which refund lookup path matched. Nil outside
	// tests.
	lookupFired func(path string)
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(store Store, catalog *Catalog) *Reconciler {
	return &Reconciler{
		store:   store,
		catalog: catalog,
		now:     time.Now,
	}
}

// ProcessWebhook records a verified delivery for audit/deduplication, applies
// it, and marks it processed. A nil return acknowledges the event to the
// provider; an error asks for redelivery.
func (r *Reconciler) ProcessWebhook(ctx context.Context, pe *ProviderEvent) error {
	created, stored, err := r.store.CreateWebhookEventIfNotExists(ctx, &models.BillingWebhookEvent{
		Provider:        ProviderName,
		ProviderEventID: pe.ID,
		EventType:       pe.Type,
		PayloadJSON:     string(pe.RawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		// Redelivery of an event we already processed successfully. Events
		// that failed keep retrying via the provider's redelivery.
		return nil
	}

	applyErr := r.ApplyProviderEvent(ctx, pe)
	if applyErr != nil {
		if markErr := r.store.MarkWebhookProcessed(ctx, stored.ID, applyErr.Error()); markErr != nil {
			log.Printf("[Billing] ERROR: mark webhook %s failed: %v", pe.ID, markErr)
		}
		return applyErr
	}
	return r.store.MarkWebhookProcessed(ctx, stored.ID, "")
}

// ApplyProviderEvent dispatches one decoded event to its handler. Unknown
// event kinds are acknowledged without processing.
func (r *Reconciler) ApplyProviderEvent(ctx context.Context, pe *ProviderEvent) error {
	switch pe.Kind {
	case KindPaymentConfirmed:
		return r.applyPaymentConfirmed(ctx, pe.Payment)
	case KindRefunded:
		return r.applyRefunded(ctx, pe.Refund)
	case KindCancelled:
		return r.applyCancelled(ctx, pe.Cancel)
	default:
		log.Printf("[Billing] webhook %s ignored (type %s)", pe.ID, pe.Type)
		return nil
	}
}

func (r *Reconciler) applyPaymentConfirmed(ctx context.Context, ev *PaymentConfirmed) error {
	info, ok := r.catalog.Lookup(ev.Plan)
	if !ok {
		// Metadata names a plan this deployment does not sell. Unrecoverable,
		// so acknowledge instead of looping the delivery forever.
		log.Printf("[Billing] WARN: payment confirmed for unknown plan %q, user %d", ev.Plan, ev.UserID)
		return nil
	}

	ent, err := r.store.GetEntitlement(ctx, ev.UserID)
	if errors.Is(err, ErrUserNotFound) {
		// A paid activation must not be dropped. Rejecting makes the
		// provider redeliver; the retry succeeds once the user row exists.
		return fmt.Errorf("payment confirmed for unknown user %d (customer %s): %w", ev.UserID, ev.CustomerRef, err)
	}
	if err != nil {
		return err
	}

	// Redelivery, or a synchronous plan change already established this
	// exact state. Reapplying would push the expiry forward for free.
	if ent.Matches(info.Plan, ev.CustomerRef, ev.SubscriptionRef) {
		return nil
	}

	expiresAt := r.now().AddDate(0, info.DurationMonths, 0)
	_, err = saveEntitlementWithRetry(ctx, r.store, ev.UserID, func(e *Entitlement) error {
		if e.Matches(info.Plan, ev.CustomerRef, ev.SubscriptionRef) {
			return nil
		}
		return e.Activate(info.Plan, expiresAt, ev.CustomerRef, ev.SubscriptionRef)
	})
	return err
}

func (r *Reconciler) applyRefunded(ctx context.Context, ev *Refunded) error {
	ent, path, err := r.findForRefund(ctx, ev)
	if errors.Is(err, ErrUserNotFound) {
		// Cannot be retried into existence. Acknowledge and report.
		log.Printf("[Billing] WARN: refund matched no user (customer %s, email %s)", ev.CustomerRef, ev.Email)
		return nil
	}
	if err != nil {
		return err
	}
	if r.lookupFired != nil {
		r.lookupFired(path)
	}
	return r.expire(ctx, ent)
}

// findForRefund locates the refunded user. The customer ref is the primary
// correlation key; the billing email is a deliberately weaker fallback for
// charges that predate the customer link.
func (r *Reconciler) findForRefund(ctx context.Context, ev *Refunded) (*Entitlement, string, error) {
	ent, err := r.store.FindEntitlementByCustomerRef(ctx, ev.CustomerRef)
	if err == nil {
		return ent, "customer_ref", nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, "", err
	}

	ent, err = r.store.FindEntitlementByEmail(ctx, ev.Email)
	if err == nil {
		return ent, "email", nil
	}
	return nil, "", err
}

func (r *Reconciler) applyCancelled(ctx context.Context, ev *Cancelled) error {
	ent, err := r.store.FindEntitlementBySubscriptionRef(ctx, ev.SubscriptionRef)
	if errors.Is(err, ErrUserNotFound) {
		ent, err = r.store.FindEntitlementByCustomerRef(ctx, ev.CustomerRef)
	}
	if errors.Is(err, ErrUserNotFound) {
		log.Printf("[Billing] WARN: cancellation matched no user (subscription %s, customer %s)", ev.SubscriptionRef, ev.CustomerRef)
		return nil
	}
	if err != nil {
		return err
	}
	return r.expire(ctx, ent)
}

func (r *Reconciler) expire(ctx context.Context, ent *Entitlement) error {
	if ent.Plan == "" && ent.SubscriptionRef == "" {
		// Already on free tier; redelivered finalization is a no-op.
		return nil
	}
	at := r.now()
	_, err := saveEntitlementWithRetry(ctx, r.store, ent.UserID, func(e *Entitlement) error {
		if e.Plan == "" && e.SubscriptionRef == "" {
			return nil
		}
		return e.Expire(at)
	})
	return err
}
