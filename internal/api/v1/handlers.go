package apiv1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/mhartwig/shelfmark/app/controllers"
	"github.com/mhartwig/shelfmark/app/models"
	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
)

// Pong is the ping endpoint response
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetUserProfile returns account information for the authenticated user.
// Security is enforced via API key or session middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetUserSubscription returns the subscription state for the authenticated user
func (s *APIServer) GetUserSubscription(c *fiber.Ctx) error {
	return controllers.HandleAPIGetSubscription(c)
}

// PostUserSubscription starts a checkout or changes the plan in place
func (s *APIServer) PostUserSubscription(c *fiber.Ctx) error {
	return controllers.HandleAPISubscribe(c)
}

// DeleteUserSubscription schedules cancellation at the end of the paid term
func (s *APIServer) DeleteUserSubscription(c *fiber.Ctx) error {
	return controllers.HandleAPICancelSubscription(c)
}

// GetUserInvoices returns the provider invoice history
func (s *APIServer) GetUserInvoices(c *fiber.Ctx) error {
	return controllers.HandleAPIListInvoices(c)
}

// GetUserBooks lists the authenticated user's library
func (s *APIServer) GetUserBooks(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	const perPage = 50

	repo := repository.GetGlobalFactory().GetBookRepository()

	var books []models.Book
	if status := c.Query("status", ""); status != "" {
		books, err = repo.GetByUserIDAndStatus(userCtx.UserID, status, (page-1)*perPage, perPage)
	} else {
		books, err = repo.GetByUserID(userCtx.UserID, (page-1)*perPage, perPage)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load books"})
	}

	total, _ := repo.CountByUserID(userCtx.UserID)

	return c.JSON(fiber.Map{
		"books": books,
		"page":  page,
		"total": total,
	})
}

// PostUserBook creates a new book, enforcing the plan's library limit
func (s *APIServer) PostUserBook(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var body struct {
		Title     string `json:"title"`
		Author    string `json:"author"`
		ISBN      string `json:"isbn"`
		CoverURL  string `json:"cover_url"`
		PageCount int    `json:"page_count"`
		IsPublic  bool   `json:"is_public"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	repo := repository.GetGlobalFactory().GetBookRepository()

	count, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check library size"})
	}
	limits := entitlements.LimitsFor(entitlements.Normalize(userCtx.Plan))
	if !entitlements.WithinLimit(limits.MaxBooks, int(count)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "limit_reached",
			"message": "Your plan's book limit is reached",
		})
	}

	book := &models.Book{
		UserID:    userCtx.UserID,
		Title:     body.Title,
		Author:    body.Author,
		ISBN:      body.ISBN,
		CoverURL:  body.CoverURL,
		Status:    models.BOOK_STATUS_TO_READ,
		PageCount: body.PageCount,
		IsPublic:  body.IsPublic,
	}
	if err := book.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Create(book); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save book"})
	}

	return c.Status(fiber.StatusCreated).JSON(book)
}

// GetBook returns one of the user's books by id
func (s *APIServer) GetBook(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid book id"})
	}

	repo := repository.GetGlobalFactory().GetBookRepository()
	book, err := repo.GetByID(uint(id))
	if err != nil || book.UserID != userCtx.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Book not found"})
	}

	return c.JSON(book)
}
