package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mhartwig/shelfmark/app/models"
	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/database"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
	"github.com/mhartwig/shelfmark/internal/pkg/utils"
)

func HandleUserProfile(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		flash.WithError(c, fiber.Map{"message": "User not found"})
		return c.Redirect("/")
	}

	stats, err := repo.GetStatsByUserID(userCtx.UserID)
	if err != nil {
		flash.WithError(c, fiber.Map{"message": "Could not load statistics"})
		return c.Redirect("/")
	}

	avatarURL := user.AvatarURL
	if avatarURL == "" {
		avatarURL = utils.GetGravatarURL(user.Email, 200)
	}

	return renderPage(c, "user/profile", "Profile", fiber.Map{
		"CsrfToken":   c.Locals("csrf").(string),
		"User":        user,
		"AvatarURL":   avatarURL,
		"BookCount":   stats.BookCount,
		"ShelfCount":  stats.ShelfCount,
		"UpdateCount": stats.UpdateCount,
	})
}

func HandleUserSettings(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	settings, err := models.GetOrCreateUserSettings(database.GetDB(), userCtx.UserID)
	if err != nil {
		flash.WithError(c, fiber.Map{"message": "Could not load settings"})
		return c.Redirect("/")
	}

	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))

	return renderPage(c, "user/settings", "Settings", fiber.Map{
		"CsrfToken": c.Locals("csrf").(string),
		"Settings":  settings,
		"Limits":    limits,
	})
}

func HandleUserSettingsPost(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load settings"}).Redirect("/user/settings")
	}

	settings.PrefPublicLibrary = c.FormValue("pref_public_library") == "on"
	settings.PrefFeedVisible = c.FormValue("pref_feed_visible") == "on"
	settings.PrefEmailOnComment = c.FormValue("pref_email_on_comment") == "on"

	if err := db.Save(settings).Error; err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save settings"}).Redirect("/user/settings")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Settings saved"}).Redirect("/user/settings")
}

// HandleUserAPIKeyGenerate issues a fresh API key and shows it exactly once
func HandleUserAPIKeyGenerate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load settings"}).Redirect("/user/settings")
	}

	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "API key generation failed"}).Redirect("/user/settings")
	}
	if err := db.Save(settings).Error; err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save API key"}).Redirect("/user/settings")
	}

	// The raw key is only shown on this response; we store the hash.
	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "New API key: " + rawKey + " (copy it now, it will not be shown again)",
	}).Redirect("/user/settings")
}

func HandleUserAPIKeyRevoke(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load settings"}).Redirect("/user/settings")
	}

	settings.RevokeAPIKey()
	if err := db.Save(settings).Error; err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not revoke API key"}).Redirect("/user/settings")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "API key revoked"}).Redirect("/user/settings")
}

// HandleUserNotifications lists the user's notifications, newest first
func HandleUserNotifications(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var notifications []models.Notification
	if err := database.GetDB().
		Where("user_id = ?", userCtx.UserID).
		Order("created_at DESC").Limit(50).
		Find(&notifications).Error; err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load notifications"}).Redirect("/")
	}

	return renderPage(c, "user/notifications", "Notifications", fiber.Map{
		"CsrfToken":     c.Locals("csrf").(string),
		"Notifications": notifications,
	})
}

func HandleUserNotificationRead(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Redirect("/user/notifications")
	}

	db := database.GetDB()
	var notification models.Notification
	if err := db.First(&notification, id).Error; err != nil || notification.UserID != userCtx.UserID {
		return c.Redirect("/user/notifications")
	}

	_ = notification.MarkAsRead(db)
	return c.Redirect("/user/notifications")
}
