package controllers

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mhartwig/shelfmark/app/models"
	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/database"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
	"github.com/mhartwig/shelfmark/internal/pkg/mail"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
	"gorm.io/gorm"
)

const feedPerPage = 20

// HandleFeed shows recent public reading updates
func HandleFeed(c *fiber.Ctx) error {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	offset := (page - 1) * feedPerPage

	repo := repository.GetGlobalFactory().GetReadingUpdateRepository()
	updates, err := repo.GetPublicFeed(offset, feedPerPage)
	if err != nil {
		flash.WithError(c, fiber.Map{"message": "Could not load the feed"})
		return c.Redirect("/")
	}

	userCtx := usercontext.GetUserContext(c)
	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))
	canPost := userCtx.IsLoggedIn && limits.CanPostUpdates

	// Books feed the picker in the post form
	var ownBooks []models.Book
	if canPost {
		bookRepo := repository.GetGlobalFactory().GetBookRepository()
		ownBooks, _ = bookRepo.GetByUserID(userCtx.UserID, 0, 200)
	}

	return renderPage(c, "feed/index", "Community feed", fiber.Map{
		"CsrfToken":      c.Locals("csrf").(string),
		"Updates":        updates,
		"Page":           page,
		"CanPostUpdates": canPost,
		"OwnBooks":       ownBooks,
	})
}

// HandleFeedPost creates a reading update; posting is a paid-plan feature
func HandleFeedPost(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))
	if !limits.CanPostUpdates {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Posting to the feed needs a paid plan"}).Redirect("/pricing")
	}

	bookID, err := strconv.Atoi(c.FormValue("book_id"))
	if err != nil || bookID < 1 {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Pick a book for your update"}).Redirect("/feed")
	}

	bookRepo := repository.GetGlobalFactory().GetBookRepository()
	book, err := bookRepo.GetByID(uint(bookID))
	if err != nil || book.UserID != userCtx.UserID {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Book not found"}).Redirect("/feed")
	}

	pageNum, _ := strconv.Atoi(c.FormValue("page", "0"))
	update := &models.ReadingUpdate{
		UserID:   userCtx.UserID,
		BookID:   uint(bookID),
		Kind:     c.FormValue("kind", models.UPDATE_KIND_PROGRESS),
		Content:  c.FormValue("content"),
		Page:     pageNum,
		IsPublic: c.FormValue("is_public", "on") == "on",
	}
	if err := update.Validate(); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": fmt.Sprintf("invalid update: %s", err)}).Redirect("/feed")
	}

	repo := repository.GetGlobalFactory().GetReadingUpdateRepository()
	if err := repo.Create(update); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not post your update"}).Redirect("/feed")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Update posted"}).Redirect("/feed")
}

func HandleFeedDelete(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Redirect("/feed")
	}

	repo := repository.GetGlobalFactory().GetReadingUpdateRepository()
	update, err := repo.GetByID(uint(id))
	if err != nil || (update.UserID != userCtx.UserID && !userCtx.IsAdmin) {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Update not found"}).Redirect("/feed")
	}

	if err := repo.Delete(update.ID); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not delete the update"}).Redirect("/feed")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Update deleted"}).Redirect("/feed")
}

// HandleFeedLike toggles a like and notifies the author
func HandleFeedLike(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Redirect("/feed")
	}

	repo := repository.GetGlobalFactory().GetReadingUpdateRepository()
	update, err := repo.GetByID(uint(id))
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Update not found"}).Redirect("/feed")
	}

	db := database.GetDB()
	liked, err := models.ToggleLike(db, userCtx.UserID, update.ID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not like the update"}).Redirect("/feed")
	}

	if liked && update.UserID != userCtx.UserID {
		content := fmt.Sprintf("%s liked your update", userCtx.Username)
		_ = models.CreateNotification(db, update.UserID, "like", content, update.ID)
	}

	return c.Redirect("/feed")
}

// HandleFeedComment adds a comment and notifies the author
func HandleFeedComment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Redirect("/feed")
	}

	content := c.FormValue("content")
	if content == "" {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Comment cannot be empty"}).Redirect("/feed")
	}

	repo := repository.GetGlobalFactory().GetReadingUpdateRepository()
	update, err := repo.GetByID(uint(id))
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Update not found"}).Redirect("/feed")
	}

	comment := &models.Comment{
		UserID:          userCtx.UserID,
		ReadingUpdateID: update.ID,
		Content:         content,
	}
	if err := repo.AddComment(comment); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not post the comment"}).Redirect("/feed")
	}

	if update.UserID != userCtx.UserID {
		db := database.GetDB()
		notifyText := fmt.Sprintf("%s commented on your update", userCtx.Username)
		_ = models.CreateNotification(db, update.UserID, "comment", notifyText, update.ID)

		// Mail is opt-out via user settings
		if settings, err := models.GetOrCreateUserSettings(db, update.UserID); err == nil && settings.PrefEmailOnComment {
			go notifyCommentByMail(db, update.UserID, notifyText)
		}
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Comment posted"}).Redirect("/feed")
}

func HandleFeedCommentDelete(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("comment_id")
	if err != nil || id < 1 {
		return c.Redirect("/feed")
	}

	db := database.GetDB()
	var comment models.Comment
	if err := db.First(&comment, id).Error; err != nil {
		return c.Redirect("/feed")
	}
	if comment.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Redirect("/feed")
	}

	repo := repository.GetGlobalFactory().GetReadingUpdateRepository()
	if err := repo.DeleteComment(comment.ID); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not delete the comment"}).Redirect("/feed")
	}

	return c.Redirect("/feed")
}

func notifyCommentByMail(db *gorm.DB, userID uint, text string) {
	var author models.User
	if err := db.First(&author, userID).Error; err != nil {
		return
	}
	body := fmt.Sprintf("<p>%s</p><p><a href=\"%s/feed\">Open the feed</a></p>", text, publicBaseURL())
	_ = mail.SendMail(author.Email, "New comment on Shelfmark", body)
}
