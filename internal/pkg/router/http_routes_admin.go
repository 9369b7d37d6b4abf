package router

import (
	"github.com/mhartwig/shelfmark/app/controllers"
	"github.com/mhartwig/shelfmark/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/", controllers.HandleAdminDashboard)
	adminGroup.Get("/users", controllers.HandleAdminUsers)
	adminGroup.Get("/users/edit/:id", controllers.HandleAdminUserEdit)
	adminGroup.Post("/users/update/:id", controllers.HandleAdminUserUpdate)
	adminGroup.Post("/users/entitlement/:id", controllers.HandleAdminUserUpdateEntitlement)
	adminGroup.Post("/users/delete/:id", controllers.HandleAdminUserDelete)
	adminGroup.Post("/users/resend-activation/:id", controllers.HandleAdminResendActivation)
}
