package router

import (
	"strings"
	"time"

	"github.com/mhartwig/shelfmark/app/controllers"
	"github.com/mhartwig/shelfmark/internal/pkg/env"
	"github.com/mhartwig/shelfmark/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", loggedInMiddleware, controllers.HandleStart)
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Get("/activate", loggedInMiddleware, controllers.HandleAuthActivate)
	group.Post("/activate", loggedInMiddleware, controllers.HandleAuthActivate)

	// User profile + settings
	group.Get("/user/profile", middleware.RequireAuth, controllers.HandleUserProfile)
	group.Get("/user/settings", middleware.RequireAuth, controllers.HandleUserSettings)
	group.Post("/user/settings", middleware.RequireAuth, controllers.HandleUserSettingsPost)
	group.Post("/user/settings/api-key", middleware.RequireAuth, controllers.HandleUserAPIKeyGenerate)
	group.Post("/user/settings/api-key/revoke", middleware.RequireAuth, controllers.HandleUserAPIKeyRevoke)
	group.Get("/user/notifications", middleware.RequireAuth, controllers.HandleUserNotifications)
	group.Post("/user/notifications/read/:id", middleware.RequireAuth, controllers.HandleUserNotificationRead)

	// Membership + billing
	group.Get("/user/settings/membership", middleware.RequireAuth, controllers.HandleMembership)
	group.Get("/user/settings/membership/invoices", middleware.RequireAuth, controllers.HandleBillingInvoices)
	group.Post("/user/subscribe", middleware.RequireAuth, controllers.HandleSubscribe)
	group.Post("/user/subscription/cancel", middleware.RequireAuth, controllers.HandleCancelSubscription)

	// Library
	group.Get("/user/books", middleware.RequireAuth, controllers.HandleUserBooks)
	group.Get("/user/books/create", middleware.RequireAuth, controllers.HandleBookCreate)
	group.Post("/user/books/create", middleware.RequireAuth, controllers.HandleBookCreate)
	group.Get("/user/books/edit/:id", middleware.RequireAuth, controllers.HandleBookEdit)
	group.Post("/user/books/update/:id", middleware.RequireAuth, controllers.HandleBookUpdate)
	group.Post("/user/books/delete/:id", middleware.RequireAuth, controllers.HandleBookDelete)
	group.Post("/user/books/toggle-public/:id", middleware.RequireAuth, controllers.HandleBookTogglePublic)

	// Shelves
	group.Get("/user/shelves", middleware.RequireAuth, controllers.HandleUserShelves)
	group.Get("/user/shelves/create", middleware.RequireAuth, controllers.HandleShelfCreate)
	group.Post("/user/shelves/create", middleware.RequireAuth, controllers.HandleShelfCreate)
	group.Get("/user/shelves/:id", middleware.RequireAuth, controllers.HandleShelfView)
	group.Get("/user/shelves/edit/:id", middleware.RequireAuth, controllers.HandleShelfEdit)
	group.Post("/user/shelves/edit/:id", middleware.RequireAuth, controllers.HandleShelfEdit)
	group.Post("/user/shelves/delete/:id", middleware.RequireAuth, controllers.HandleShelfDelete)
	group.Post("/user/shelves/:id/add-book", middleware.RequireAuth, controllers.HandleShelfAddBook)
	group.Post("/user/shelves/:id/remove-book/:book_id", middleware.RequireAuth, controllers.HandleShelfRemoveBook)

	// Reading feed
	group.Get("/feed", loggedInMiddleware, controllers.HandleFeed)
	group.Post("/feed", middleware.RequireAuth, controllers.HandleFeedPost)
	group.Post("/feed/delete/:id", middleware.RequireAuth, controllers.HandleFeedDelete)
	group.Post("/feed/like/:id", middleware.RequireAuth, controllers.HandleFeedLike)
	group.Post("/feed/comment/:id", middleware.RequireAuth, controllers.HandleFeedComment)
	group.Post("/feed/comment/delete/:comment_id", middleware.RequireAuth, controllers.HandleFeedCommentDelete)
}
