package router

import (
	"github.com/mhartwig/shelfmark/app/controllers"
	"github.com/mhartwig/shelfmark/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// API routes moved to ApiRouter (internal/pkg/router/api_router.go)

	// Static pages
	app.Get("/about", loggedInMiddleware, controllers.HandleAbout)
	app.Get("/pricing", loggedInMiddleware, controllers.HandlePricing)

	// Short share URLs for public books and shelves
	app.Get("/b/:sharelink", loggedInMiddleware, controllers.HandleBookShareLink)
	app.Get("/s/:sharelink", loggedInMiddleware, controllers.HandleShelfShareLink)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}
