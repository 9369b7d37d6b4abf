package router

import (
	"github.com/mhartwig/shelfmark/app/controllers"
	"github.com/mhartwig/shelfmark/internal/pkg/middleware"
	"github.com/mhartwig/shelfmark/internal/pkg/oauth"
	"github.com/mhartwig/shelfmark/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Initialize admin controller with repositories
	controllers.InitializeAdminController()

	// Initialize billing service and reconciler
	controllers.InitializeBillingController()

	h.registerPublicRoutes(app)
	h.registerCSRFProtectedRoutes(app)
	// Registered after the CSRF group so admin forms get a token
	h.registerAdminRoutes(app)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func loggedInMiddleware(c *fiber.Ctx) error {
	// UserContextMiddleware already set all user context
	// This middleware now just passes through - no additional logic needed
	// All user information is available via usercontext.GetUserContext(c)
	return c.Next()
}

// Auth middlewares moved to internal/pkg/middleware/auth.go
