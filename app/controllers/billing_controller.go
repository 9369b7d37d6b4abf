package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/sujit-baniya/flash"

	"github.com/mhartwig/shelfmark/internal/pkg/billing"
	"github.com/mhartwig/shelfmark/internal/pkg/database"
	"github.com/mhartwig/shelfmark/internal/pkg/env"
	"github.com/mhartwig/shelfmark/internal/pkg/session"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
)

const webhookProcessTimeout = 15 * time.Second

var (
	billingService    *billing.Service
	billingReconciler *billing.Reconciler
)

// InitializeBillingController wires the billing service and webhook
// reconciler against the shared database and the configured Stripe account.
func InitializeBillingController() {
	catalog := billing.NewCatalogFromEnv()
	store := billing.NewStore(database.GetDB())
	sc := stripe.NewClient(env.GetEnv("STRIPE_SECRET_KEY", ""))
	gateway := billing.NewStripeGateway(sc)

	billingService = billing.NewService(store, gateway, catalog)
	billingReconciler = billing.NewReconciler(store, catalog)
}

// HandleMembership shows the current plan, available tiers and cancellation state
func HandleMembership(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	ent, err := billingService.GetEntitlement(ctx, userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load your membership"}).Redirect("/")
	}

	// Refresh the session-cached plan so the navbar follows webhook-applied
	// changes the next time the user opens this page.
	effective := "free"
	if ent.IsActive(time.Now()) {
		effective = string(ent.Plan)
	}
	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, effective)

	var expiresAt string
	if ent.ExpiresAt != nil {
		expiresAt = ent.ExpiresAt.Format("02.01.2006")
	}

	return renderPage(c, "user/membership", "Membership", fiber.Map{
		"CsrfToken":         c.Locals("csrf").(string),
		"CurrentPlan":       effective,
		"ExpiresAt":         expiresAt,
		"CancelAtPeriodEnd": ent.CancelAtPeriodEnd,
		"LifetimeAccess":    ent.LifetimeAccess,
		"HasSubscription":   ent.SubscriptionRef != "",
	})
}

// HandleSubscribe starts a checkout or swaps the price on a running
// subscription, depending on the user's current state.
func HandleSubscribe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	plan, ok := billing.NormalizePlan(c.FormValue("plan"))
	if !ok {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Unknown plan"}).Redirect("/user/settings/membership")
	}

	base := publicBaseURL()
	successURL := base + "/user/settings/membership?checkout=success"
	cancelURL := base + "/user/settings/membership?checkout=cancelled"

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	result, err := billingService.StartOrChangeSubscription(ctx, userCtx.UserID, plan, successURL, cancelURL)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": billingErrorMessage(err)}).Redirect("/user/settings/membership")
	}

	if !result.Immediate {
		// Hosted checkout; entitlement is written by the webhook after payment.
		return c.Redirect(result.RedirectURL, fiber.StatusSeeOther)
	}

	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, string(result.Entitlement.Plan))

	msg := fmt.Sprintf("Plan changed to %s. Your new term runs until %s.",
		result.Entitlement.Plan, result.Entitlement.ExpiresAt.Format("02.01.2006"))
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect("/user/settings/membership")
}

// HandleCancelSubscription schedules a cancellation at the end of the paid term
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	confirmation, err := billingService.RequestCancellation(ctx, userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": billingErrorMessage(err)}).Redirect("/user/settings/membership")
	}

	msg := "Subscription cancelled. Your access stays active until the end of the paid term."
	if confirmation.EffectiveAt != nil {
		msg = fmt.Sprintf("Subscription cancelled. Your access stays active until %s.",
			confirmation.EffectiveAt.Format("02.01.2006"))
	}
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect("/user/settings/membership")
}

// HandleBillingInvoices lists past invoices from the payment provider
func HandleBillingInvoices(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	invoices, err := billingService.ListInvoices(ctx, userCtx.UserID, 24)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": billingErrorMessage(err)}).Redirect("/user/settings/membership")
	}

	return renderPage(c, "user/invoices", "Invoices", fiber.Map{
		"Invoices": invoices,
	})
}

// HandleStripeWebhook verifies, records and applies provider events.
// Mounted outside the CSRF group; authenticity comes from the signature.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.BodyRaw()...)
	sigHeader := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := billing.VerifyEvent(payload, sigHeader, secret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	pe, err := billing.ParseProviderEvent(&event)
	if err != nil {
		// Malformed but authentic. Acknowledge so the provider stops
		// redelivering; a retry cannot fix a bad payload.
		log.Printf("stripe webhook %s (%s): dropping malformed event: %v", event.ID, event.Type, err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "dropped": true})
	}

	if pe.Kind == billing.KindIgnored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	if err := billingReconciler.ProcessWebhook(ctx, pe); err != nil {
		// Non-2xx makes Stripe redeliver; the event log keeps the retry idempotent.
		log.Printf("stripe webhook %s (%s): %v", event.ID, event.Type, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func billingErrorMessage(err error) string {
	switch {
	case errors.Is(err, billing.ErrInvalidPlan):
		return "Unknown plan"
	case errors.Is(err, billing.ErrPaymentFailed):
		return "Payment failed. Your previous plan is unchanged."
	case errors.Is(err, billing.ErrProviderUnavailable):
		return "The payment provider is currently unavailable. Please try again later."
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return "You have no active subscription."
	case errors.Is(err, billing.ErrConcurrentModification):
		return "Your membership changed in the meantime. Please reload and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func publicBaseURL() string {
	base := env.GetEnv("PUBLIC_DOMAIN", "")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return base
}
