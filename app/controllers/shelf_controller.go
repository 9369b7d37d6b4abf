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
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
)

func HandleUserShelves(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetShelfRepository()
	shelves, err := repo.GetByUserID(userCtx.UserID)
	if err != nil {
		flash.WithError(c, fiber.Map{"message": "Could not load your shelves"})
		return c.Redirect("/")
	}

	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))

	return renderPage(c, "shelves/index", "My shelves", fiber.Map{
		"CsrfToken":  c.Locals("csrf").(string),
		"Shelves":    shelves,
		"MaxShelves": limits.MaxShelves,
	})
}

// HandleShelfCreate shows the form and stores a new shelf, enforcing the plan limit
func HandleShelfCreate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if c.Method() != fiber.MethodPost {
		return renderPage(c, "shelves/create", "New shelf", fiber.Map{
			"CsrfToken": c.Locals("csrf").(string),
		})
	}

	repo := repository.GetGlobalFactory().GetShelfRepository()

	count, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not check your shelves"}).Redirect("/user/shelves")
	}
	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))
	if !entitlements.WithinLimit(limits.MaxShelves, int(count)) {
		msg := fmt.Sprintf("Your plan allows %d shelves. Upgrade to add more.", limits.MaxShelves)
		return flash.WithError(c, fiber.Map{"type": "error", "message": msg}).Redirect("/pricing")
	}

	shelf := &models.Shelf{
		UserID:      userCtx.UserID,
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		IsPublic:    c.FormValue("is_public") == "on" && limits.CanShareShelves,
	}
	if shelf.Title == "" {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "A shelf needs a title"}).Redirect("/user/shelves/create")
	}

	if err := repo.Create(shelf); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save the shelf"}).Redirect("/user/shelves")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Shelf created"}).Redirect("/user/shelves")
}

func HandleShelfView(c *fiber.Ctx) error {
	shelf, err := loadOwnShelf(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Shelf not found"}).Redirect("/user/shelves")
	}

	bookRepo := repository.GetGlobalFactory().GetBookRepository()
	ownBooks, _ := bookRepo.GetByUserID(shelf.UserID, 0, 500)

	return renderPage(c, "shelves/show", shelf.Title, fiber.Map{
		"CsrfToken": c.Locals("csrf").(string),
		"Shelf":     shelf,
		"OwnBooks":  ownBooks,
	})
}

func HandleShelfEdit(c *fiber.Ctx) error {
	shelf, err := loadOwnShelf(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Shelf not found"}).Redirect("/user/shelves")
	}

	if c.Method() != fiber.MethodPost {
		return renderPage(c, "shelves/edit", "Edit shelf", fiber.Map{
			"CsrfToken": c.Locals("csrf").(string),
			"Shelf":     shelf,
		})
	}

	userCtx := usercontext.GetUserContext(c)
	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))

	shelf.Title = c.FormValue("title", shelf.Title)
	shelf.Description = c.FormValue("description", shelf.Description)
	shelf.IsPublic = c.FormValue("is_public") == "on" && limits.CanShareShelves

	repo := repository.GetGlobalFactory().GetShelfRepository()
	if err := repo.Update(shelf); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save changes"}).Redirect("/user/shelves")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Shelf updated"}).Redirect("/user/shelves")
}

func HandleShelfDelete(c *fiber.Ctx) error {
	shelf, err := loadOwnShelf(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Shelf not found"}).Redirect("/user/shelves")
	}

	repo := repository.GetGlobalFactory().GetShelfRepository()
	if err := repo.Delete(shelf.ID); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not delete the shelf"}).Redirect("/user/shelves")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Shelf deleted"}).Redirect("/user/shelves")
}

func HandleShelfAddBook(c *fiber.Ctx) error {
	shelf, err := loadOwnShelf(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Shelf not found"}).Redirect("/user/shelves")
	}

	bookID, err := strconv.Atoi(c.FormValue("book_id"))
	if err != nil || bookID < 1 {
		return c.Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
	}

	// Only own books can be shelved
	bookRepo := repository.GetGlobalFactory().GetBookRepository()
	book, err := bookRepo.GetByID(uint(bookID))
	if err != nil || book.UserID != shelf.UserID {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Book not found"}).Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
	}

	repo := repository.GetGlobalFactory().GetShelfRepository()
	if err := repo.AddBook(shelf.ID, uint(bookID)); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not add the book"}).Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Book added to shelf"}).Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
}

func HandleShelfRemoveBook(c *fiber.Ctx) error {
	shelf, err := loadOwnShelf(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Shelf not found"}).Redirect("/user/shelves")
	}

	bookID, err := c.ParamsInt("book_id")
	if err != nil || bookID < 1 {
		return c.Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
	}

	repo := repository.GetGlobalFactory().GetShelfRepository()
	if err := repo.RemoveBook(shelf.ID, uint(bookID)); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not remove the book"}).Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Book removed from shelf"}).Redirect(fmt.Sprintf("/user/shelves/%d", shelf.ID))
}

// HandleShelfShareLink serves the public shelf page for share links
func HandleShelfShareLink(c *fiber.Ctx) error {
	shareLink := c.Params("sharelink")
	if shareLink == "" {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	repo := repository.GetGlobalFactory().GetShelfRepository()
	shelf, err := repo.GetByShareLink(shareLink)
	if err != nil || !shelf.IsPublic {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	_ = shelf.IncrementViewCount(database.GetDB())

	return renderPage(c, "shelves/public", shelf.Title, fiber.Map{
		"Shelf": shelf,
		"Owner": shelf.User.Name,
	})
}

func loadOwnShelf(c *fiber.Ctx) (*models.Shelf, error) {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return nil, fmt.Errorf("invalid shelf id")
	}

	repo := repository.GetGlobalFactory().GetShelfRepository()
	shelf, err := repo.GetByID(uint(id))
	if err != nil {
		return nil, err
	}
	if shelf.UserID != userCtx.UserID {
		return nil, fmt.Errorf("not the owner")
	}
	return shelf, nil
}
