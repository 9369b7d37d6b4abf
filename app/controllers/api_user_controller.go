package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mhartwig/shelfmark/app/models"
	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/database"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user (API key or session).
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	stats, err := repo.GetStatsByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	now := time.Now()
	limits := entitlements.EffectiveLimits(account, now)
	plan := string(entitlements.PlanFree)
	if account.HasActiveSubscription(now) {
		plan = string(entitlements.Normalize(account.Plan))
	}

	response := fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"plan":                 plan,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":        formatTimePtr(account.LastLoginAt),
		"api_key_last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		"subscription": fiber.Map{
			"active":               account.HasActiveSubscription(now),
			"expires_at":           formatTimePtr(account.SubscriptionExpiresAt),
			"cancel_at_period_end": account.CancelAtPeriodEnd,
			"lifetime_access":      account.LifetimeAccess,
		},
		"stats": fiber.Map{
			"books": fiber.Map{
				"count": stats.BookCount,
			},
			"shelves": fiber.Map{
				"count": stats.ShelfCount,
			},
			"updates": fiber.Map{
				"count": stats.UpdateCount,
			},
		},
		"limits": fiber.Map{
			"max_books":         limits.MaxBooks,
			"max_shelves":       limits.MaxShelves,
			"can_post_updates":  limits.CanPostUpdates,
			"can_share_shelves": limits.CanShareShelves,
		},
		"preferences": fiber.Map{
			"public_library":   settings.PrefPublicLibrary,
			"feed_visible":     settings.PrefFeedVisible,
			"email_on_comment": settings.PrefEmailOnComment,
		},
	}

	return c.JSON(response)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
