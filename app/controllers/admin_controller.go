package controllers

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mhartwig/shelfmark/app/models"
	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/cache"
	"github.com/mhartwig/shelfmark/internal/pkg/database"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
	"github.com/mhartwig/shelfmark/internal/pkg/session"
	"github.com/mhartwig/shelfmark/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// AdminController handles admin-related HTTP requests using repository pattern
type AdminController struct {
	repos *repository.Repositories
}

// NewAdminController creates a new admin controller with repository dependencies
func NewAdminController(repos *repository.Repositories) *AdminController {
	return &AdminController{
		repos: repos,
	}
}

// Global admin controller instance
var adminController *AdminController

// InitializeAdminController initializes the global admin controller with repositories
func InitializeAdminController() {
	repos := repository.GetGlobalRepositories()
	adminController = NewAdminController(repos)
}

// GetAdminController returns the global admin controller instance
func GetAdminController() *AdminController {
	if adminController == nil {
		InitializeAdminController()
	}
	return adminController
}

// HandleDashboard renders the admin dashboard with clean repository usage
func (ac *AdminController) HandleDashboard(c *fiber.Ctx) error {
	totalUsers, err := ac.repos.User.Count()
	if err != nil {
		return ac.handleError(c, "Failed to get user count", err)
	}

	totalBooks, err := ac.repos.Book.Count()
	if err != nil {
		return ac.handleError(c, "Failed to get book count", err)
	}

	totalShelves, err := ac.repos.Shelf.Count()
	if err != nil {
		return ac.handleError(c, "Failed to get shelf count", err)
	}

	totalUpdates, err := ac.repos.ReadingUpdate.Count()
	if err != nil {
		return ac.handleError(c, "Failed to get update count", err)
	}

	// Paying customers right now
	var paidUsers int64
	if db := database.GetDB(); db != nil {
		db.Model(&models.User{}).
			Where("lifetime_access = ? OR subscription_expires_at > ?", true, time.Now()).
			Count(&paidUsers)
	}

	return renderPage(c, "admin/dashboard", "Admin", fiber.Map{
		"TotalUsers":   totalUsers,
		"TotalBooks":   totalBooks,
		"TotalShelves": totalShelves,
		"TotalUpdates": totalUpdates,
		"PaidUsers":    paidUsers,
		"SignupStats":  ac.getLastSevenDaysStats(),
	})
}

// HandleUsers lists users with statistics, optionally filtered by a search term
func (ac *AdminController) HandleUsers(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q", ""))

	var (
		users []repository.UserWithStats
		err   error
	)
	if query != "" {
		users, err = ac.repos.User.SearchWithStats(query)
	} else {
		page, perr := strconv.Atoi(c.Query("page", "1"))
		if perr != nil || page < 1 {
			page = 1
		}
		users, err = ac.repos.User.GetWithStats((page-1)*50, 50)
	}
	if err != nil {
		return ac.handleError(c, "Failed to load users", err)
	}

	return renderPage(c, "admin/users", "Users", fiber.Map{
		"CsrfToken": c.Locals("csrf").(string),
		"Users":     users,
		"Query":     query,
		"Now":       time.Now(),
	})
}

func (ac *AdminController) HandleUserEdit(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Redirect("/admin/users")
	}

	user, err := ac.repos.User.GetByID(uint(id))
	if err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "User not found",
		}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	plan := string(entitlements.PlanFree)
	if user.HasActiveSubscription(time.Now()) {
		plan = string(entitlements.Normalize(user.Plan))
	}

	return renderPage(c, "admin/user_edit", "Edit user", fiber.Map{
		"CsrfToken": c.Locals("csrf").(string),
		"User":      user,
		"Plan":      plan,
	})
}

// HandleUserUpdate handles user update with repository pattern
func (ac *AdminController) HandleUserUpdate(c *fiber.Ctx) error {
	userID := c.Params("id")
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		return c.Redirect("/admin/users")
	}

	user, err := ac.repos.User.GetByID(uint(id))
	if err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "User not found",
		}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	user.Name = c.FormValue("name")
	user.Email = c.FormValue("email")
	user.Role = c.FormValue("role")
	user.Status = c.FormValue("status")

	if err := user.Validate(); err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "Validation failed: " + err.Error(),
		}
		return flash.WithError(c, fm).Redirect("/admin/users/edit/" + userID)
	}

	if err := ac.repos.User.Update(user); err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "Failed to update user: " + err.Error(),
		}
		return flash.WithError(c, fm).Redirect("/admin/users/edit/" + userID)
	}

	fm := fiber.Map{
		"type":    "success",
		"message": "User updated successfully",
	}

	return flash.WithSuccess(c, fm).Redirect("/admin/users")
}

// HandleUserUpdateEntitlement administers paid access directly: grants a plan
// for its full term, toggles lifetime access or revokes everything. Writes go
// through the same version-token protocol the billing writers use.
func (ac *AdminController) HandleUserUpdateEntitlement(c *fiber.Ctx) error {
	userID := c.Params("id")
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		return c.Redirect("/admin/users")
	}

	user, err := ac.repos.User.GetByID(uint(id))
	if err != nil || user == nil {
		fm := fiber.Map{"type": "error", "message": "User not found"}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	db := database.GetDB()
	action := strings.TrimSpace(c.FormValue("action"))

	updates := map[string]any{
		"entitlement_version": gorm.Expr("entitlement_version + 1"),
	}

	switch action {
	case "grant":
		plan := entitlements.Normalize(c.FormValue("plan"))
		months := map[entitlements.Plan]int{
			entitlements.PlanExplorer: 3,
			entitlements.PlanTraveler: 6,
			entitlements.PlanDevourer: 12,
		}[plan]
		if months == 0 {
			fm := fiber.Map{"type": "error", "message": "Unknown plan"}
			return flash.WithError(c, fm).Redirect("/admin/users/edit/" + userID)
		}
		updates["plan"] = string(plan)
		updates["subscription_expires_at"] = time.Now().AddDate(0, months, 0)
	case "lifetime":
		updates["lifetime_access"] = true
	case "revoke":
		updates["plan"] = ""
		updates["subscription_expires_at"] = nil
		updates["cancel_at_period_end"] = false
		updates["lifetime_access"] = false
	default:
		fm := fiber.Map{"type": "error", "message": "Unknown action"}
		return flash.WithError(c, fm).Redirect("/admin/users/edit/" + userID)
	}

	result := db.Model(&models.User{}).
		Where("id = ? AND entitlement_version = ?", user.ID, user.EntitlementVersion).
		Updates(updates)
	if result.Error != nil {
		fm := fiber.Map{"type": "error", "message": "Failed to update entitlement: " + result.Error.Error()}
		return flash.WithError(c, fm).Redirect("/admin/users/edit/" + userID)
	}
	if result.RowsAffected == 0 {
		fm := fiber.Map{"type": "error", "message": "Entitlement changed concurrently, reload and retry"}
		return flash.WithError(c, fm).Redirect("/admin/users/edit/" + userID)
	}

	fm := fiber.Map{"type": "success", "message": "Entitlement updated"}
	return flash.WithSuccess(c, fm).Redirect("/admin/users/edit/" + userID)
}

// HandleUserDelete handles user deletion with repository pattern
func (ac *AdminController) HandleUserDelete(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.SendStatus(fiber.StatusMethodNotAllowed)
	}

	userID := c.Params("id")
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		return c.Redirect("/admin/users")
	}

	// Prevent self-deletion
	sess, _ := session.GetSessionStore().Get(c)
	currentUserID := sess.Get(usercontext.KeyUserID).(uint)

	if currentUserID == uint(id) {
		fm := fiber.Map{
			"type":    "error",
			"message": "You cannot delete your own account",
		}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	if err := ac.repos.User.Delete(uint(id)); err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "Failed to delete user: " + err.Error(),
		}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	fm := fiber.Map{
		"type":    "success",
		"message": "User deleted successfully",
	}

	return flash.WithSuccess(c, fm).Redirect("/admin/users")
}

// HandleResendActivation re-sends the activation mail with a fresh token
func (ac *AdminController) HandleResendActivation(c *fiber.Ctx) error {
	userID := c.Params("id")
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		return c.Redirect("/admin/users")
	}

	user, err := ac.repos.User.GetByID(uint(id))
	if err != nil {
		fm := fiber.Map{"type": "error", "message": "User not found"}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}
	if user.Status != models.STATUS_INACTIVE {
		fm := fiber.Map{"type": "error", "message": "User is already active"}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	if err := user.GenerateActivationToken(); err != nil {
		fm := fiber.Map{"type": "error", "message": "Token generation failed"}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}
	if err := ac.repos.User.Update(user); err != nil {
		fm := fiber.Map{"type": "error", "message": "Failed to save token"}
		return flash.WithError(c, fm).Redirect("/admin/users")
	}

	go sendActivationMail(user)

	fm := fiber.Map{"type": "success", "message": fmt.Sprintf("Activation mail sent to %s", user.Email)}
	return flash.WithSuccess(c, fm).Redirect("/admin/users")
}

func (ac *AdminController) handleError(c *fiber.Ctx, message string, err error) error {
	log.Printf("admin: %s: %v", message, err)
	fm := fiber.Map{
		"type":    "error",
		"message": message,
	}
	return flash.WithError(c, fm).Redirect("/admin")
}

// getLastSevenDaysStats returns signups per day, gaps filled with zeroes.
// The result is cached briefly, the underlying GROUP BY scans the users table.
func (ac *AdminController) getLastSevenDaysStats() []models.DailyStats {
	const cacheKey = "admin:signup_stats"

	if raw, err := cache.Get(cacheKey); err == nil && raw != "" {
		var cached []models.DailyStats
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached
		}
	}

	now := time.Now()
	startDate := now.AddDate(0, 0, -6).Truncate(24 * time.Hour)
	endDate := now.Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond)

	stats, err := ac.repos.User.GetDailyStats(startDate, endDate)
	if err != nil {
		log.Printf("Error getting daily signup stats: %v", err)
		stats = nil
	}

	statsMap := make(map[string]int)
	for _, stat := range stats {
		statsMap[stat.Date] = stat.Count
	}

	result := make([]models.DailyStats, 7)
	for i := 0; i < 7; i++ {
		date := startDate.AddDate(0, 0, i)
		dateStr := date.Format("2006-01-02")
		result[i] = models.DailyStats{Date: dateStr, Count: statsMap[dateStr]}
	}

	if raw, err := json.Marshal(result); err == nil {
		if err := cache.Set(cacheKey, string(raw), 10*time.Minute); err != nil {
			log.Printf("Error caching signup stats: %v", err)
		}
	}

	return result
}

// Adapter functions to keep the router free of controller instances

func HandleAdminDashboard(c *fiber.Ctx) error {
	return GetAdminController().HandleDashboard(c)
}

func HandleAdminUsers(c *fiber.Ctx) error {
	return GetAdminController().HandleUsers(c)
}

func HandleAdminUserEdit(c *fiber.Ctx) error {
	return GetAdminController().HandleUserEdit(c)
}

func HandleAdminUserUpdate(c *fiber.Ctx) error {
	return GetAdminController().HandleUserUpdate(c)
}

func HandleAdminUserUpdateEntitlement(c *fiber.Ctx) error {
	return GetAdminController().HandleUserUpdateEntitlement(c)
}

func HandleAdminUserDelete(c *fiber.Ctx) error {
	return GetAdminController().HandleUserDelete(c)
}

func HandleAdminResendActivation(c *fiber.Ctx) error {
	return GetAdminController().HandleResendActivation(c)
}
