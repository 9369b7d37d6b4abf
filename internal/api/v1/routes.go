package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mhartwig/shelfmark/internal/pkg/middleware"
)

// RegisterHandlers wires the v1 endpoints onto the given router group.
// All routes except /ping require an API key.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	keyAuth := middleware.APIKeyAuthMiddleware()

	// Account
	router.Get("/user/profile", keyAuth, s.GetUserProfile)

	// Subscription
	router.Get("/user/subscription", keyAuth, s.GetUserSubscription)
	router.Post("/user/subscription", keyAuth, s.PostUserSubscription)
	router.Post("/user/subscription/cancel", keyAuth, s.DeleteUserSubscription)
	router.Get("/user/invoices", keyAuth, s.GetUserInvoices)

	// Library
	router.Get("/user/books", keyAuth, s.GetUserBooks)
	router.Post("/user/books", keyAuth, s.PostUserBook)
	router.Get("/user/books/:id", keyAuth, s.GetBook)
}
