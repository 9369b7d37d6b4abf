package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mhartwig/shelfmark/internal/pkg/billing"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
)

// HandleAPIGetSubscription returns the authenticated user's subscription state
func HandleAPIGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	ent, err := billingService.GetEntitlement(ctx, userCtx.UserID)
	if err != nil {
		return apiBillingError(c, err)
	}

	now := time.Now()
	return c.JSON(fiber.Map{
		"plan":                 string(ent.Plan),
		"state":                ent.State(now).String(),
		"active":               ent.IsActive(now),
		"expires_at":           formatTimePtr(ent.ExpiresAt),
		"cancel_at_period_end": ent.CancelAtPeriodEnd,
		"lifetime_access":      ent.LifetimeAccess,
	})
}

// HandleAPISubscribe starts a checkout or performs an in-place plan change
func HandleAPISubscribe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var body struct {
		Plan       string `json:"plan"`
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	plan, ok := billing.NormalizePlan(body.Plan)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_plan", "message": "Unknown plan"})
	}

	successURL := body.SuccessURL
	if successURL == "" {
		successURL = publicBaseURL() + "/user/settings/membership?checkout=success"
	}
	cancelURL := body.CancelURL
	if cancelURL == "" {
		cancelURL = publicBaseURL() + "/user/settings/membership?checkout=cancelled"
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	result, err := billingService.StartOrChangeSubscription(ctx, userCtx.UserID, plan, successURL, cancelURL)
	if err != nil {
		return apiBillingError(c, err)
	}

	if !result.Immediate {
		return c.JSON(fiber.Map{
			"checkout_url": result.RedirectURL,
		})
	}

	return c.JSON(fiber.Map{
		"plan":       string(result.Entitlement.Plan),
		"expires_at": formatTimePtr(result.Entitlement.ExpiresAt),
	})
}

// HandleAPICancelSubscription schedules cancellation at period end
func HandleAPICancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	confirmation, err := billingService.RequestCancellation(ctx, userCtx.UserID)
	if err != nil {
		return apiBillingError(c, err)
	}

	return c.JSON(fiber.Map{
		"cancelled":    true,
		"effective_at": formatTimePtr(confirmation.EffectiveAt),
	})
}

// HandleAPIListInvoices returns the invoice history from the payment provider
func HandleAPIListInvoices(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	limit := c.QueryInt("limit", 24)
	if limit < 1 || limit > 100 {
		limit = 24
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	invoices, err := billingService.ListInvoices(ctx, userCtx.UserID, limit)
	if err != nil {
		return apiBillingError(c, err)
	}

	items := make([]fiber.Map, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, fiber.Map{
			"ref":         inv.Ref,
			"number":      inv.Number,
			"status":      inv.Status,
			"currency":    inv.Currency,
			"amount_due":  inv.AmountDue,
			"amount_paid": inv.AmountPaid,
			"created_at":  inv.CreatedAt.UTC().Format(time.RFC3339),
			"hosted_url":  inv.HostedURL,
			"pdf_url":     inv.PDFURL,
		})
	}

	return c.JSON(fiber.Map{"invoices": items})
}

func apiBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrInvalidPlan):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_plan", "message": "Unknown plan"})
	case errors.Is(err, billing.ErrPaymentFailed):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "payment_failed", "message": "Payment failed, previous plan unchanged"})
	case errors.Is(err, billing.ErrProviderUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "provider_unavailable", "message": "Payment provider unavailable"})
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_active_subscription", "message": "No active subscription"})
	case errors.Is(err, billing.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
	case errors.Is(err, billing.ErrConcurrentModification):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Entitlement changed concurrently, retry"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Unexpected error"})
	}
}
