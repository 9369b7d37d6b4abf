package controllers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mhartwig/shelfmark/app/models"
	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/database"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
)

const booksPerPage = 25

// HandleUserBooks lists the user's library, optionally filtered by status
func HandleUserBooks(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	offset := (page - 1) * booksPerPage
	status := c.Query("status", "")

	repo := repository.GetGlobalFactory().GetBookRepository()

	var books []models.Book
	if status != "" {
		books, err = repo.GetByUserIDAndStatus(userCtx.UserID, status, offset, booksPerPage)
	} else {
		books, err = repo.GetByUserID(userCtx.UserID, offset, booksPerPage)
	}
	if err != nil {
		flash.WithError(c, fiber.Map{"message": "Could not load your books"})
		return c.Redirect("/")
	}

	total, _ := repo.CountByUserID(userCtx.UserID)
	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))

	return renderPage(c, "books/index", "My books", fiber.Map{
		"CsrfToken": c.Locals("csrf").(string),
		"Books":     books,
		"Status":    status,
		"Page":      page,
		"Total":     total,
		"MaxBooks":  limits.MaxBooks,
	})
}

// HandleBookCreate shows the form and stores a new book, enforcing the plan limit
func HandleBookCreate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if c.Method() != fiber.MethodPost {
		return renderPage(c, "books/create", "Add book", fiber.Map{
			"CsrfToken": c.Locals("csrf").(string),
		})
	}

	repo := repository.GetGlobalFactory().GetBookRepository()

	count, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not check your library size"}).Redirect("/user/books")
	}
	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))
	if !entitlements.WithinLimit(limits.MaxBooks, int(count)) {
		msg := fmt.Sprintf("Your plan allows %d books. Upgrade to add more.", limits.MaxBooks)
		return flash.WithError(c, fiber.Map{"type": "error", "message": msg}).Redirect("/pricing")
	}

	pageCount, _ := strconv.Atoi(c.FormValue("page_count", "0"))
	book := &models.Book{
		UserID:    userCtx.UserID,
		Title:     c.FormValue("title"),
		Author:    c.FormValue("author"),
		ISBN:      c.FormValue("isbn"),
		CoverURL:  c.FormValue("cover_url"),
		Status:    models.BOOK_STATUS_TO_READ,
		PageCount: pageCount,
		IsPublic:  c.FormValue("is_public") == "on",
	}
	if err := book.Validate(); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": fmt.Sprintf("invalid book: %s", err)}).Redirect("/user/books/create")
	}

	if err := repo.Create(book); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save the book"}).Redirect("/user/books")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Book added to your library"}).Redirect("/user/books")
}

// HandleBookEdit renders the edit form
func HandleBookEdit(c *fiber.Ctx) error {
	book, err := loadOwnBook(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Book not found"}).Redirect("/user/books")
	}

	return renderPage(c, "books/edit", "Edit book", fiber.Map{
		"CsrfToken": c.Locals("csrf").(string),
		"Book":      book,
	})
}

// HandleBookUpdate applies form changes including status and reading progress
func HandleBookUpdate(c *fiber.Ctx) error {
	book, err := loadOwnBook(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Book not found"}).Redirect("/user/books")
	}

	book.Title = c.FormValue("title", book.Title)
	book.Author = c.FormValue("author", book.Author)
	book.ISBN = c.FormValue("isbn", book.ISBN)
	book.CoverURL = c.FormValue("cover_url", book.CoverURL)
	book.Review = c.FormValue("review", book.Review)
	if v := c.FormValue("page_count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			book.PageCount = n
		}
	}
	if v := c.FormValue("current_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			book.CurrentPage = n
		}
	}
	if v := c.FormValue("rating"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			book.Rating = n
		}
	}
	if v := c.FormValue("status"); v != "" && v != book.Status {
		book.SetStatus(v)
	}
	book.IsPublic = c.FormValue("is_public") == "on"

	if err := book.Validate(); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": fmt.Sprintf("invalid book: %s", err)}).Redirect("/user/books")
	}

	repo := repository.GetGlobalFactory().GetBookRepository()
	if err := repo.Update(book); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save changes"}).Redirect("/user/books")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Book updated"}).Redirect("/user/books")
}

func HandleBookDelete(c *fiber.Ctx) error {
	book, err := loadOwnBook(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Book not found"}).Redirect("/user/books")
	}

	repo := repository.GetGlobalFactory().GetBookRepository()
	if err := repo.Delete(book.ID); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not delete the book"}).Redirect("/user/books")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Book deleted"}).Redirect("/user/books")
}

// HandleBookTogglePublic flips the public flag and (re)activates the share link
func HandleBookTogglePublic(c *fiber.Ctx) error {
	book, err := loadOwnBook(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Book not found"}).Redirect("/user/books")
	}

	if err := book.TogglePublic(database.GetDB()); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not change visibility"}).Redirect("/user/books")
	}

	msg := "Book is now private"
	if book.IsPublic {
		msg = "Book is now public at /b/" + book.ShareLink
	}
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect("/user/books")
}

// HandleBookShareLink serves the public book page for share links
func HandleBookShareLink(c *fiber.Ctx) error {
	shareLink := c.Params("sharelink")
	if shareLink == "" {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	repo := repository.GetGlobalFactory().GetBookRepository()
	book, err := repo.GetByShareLink(shareLink)
	if err != nil || !book.IsPublic {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	return renderPage(c, "books/show", book.Title, fiber.Map{
		"Book":     book,
		"Progress": book.Progress(),
		"Owner":    book.User.Name,
		"Since":    book.CreatedAt.Format("02.01.2006"),
		"Now":      time.Now(),
	})
}

func loadOwnBook(c *fiber.Ctx) (*models.Book, error) {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return nil, fmt.Errorf("invalid book id")
	}

	repo := repository.GetGlobalFactory().GetBookRepository()
	book, err := repo.GetByID(uint(id))
	if err != nil {
		return nil, err
	}
	if book.UserID != userCtx.UserID {
		return nil, fmt.Errorf("not the owner")
	}
	return book, nil
}
