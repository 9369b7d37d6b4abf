package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mhartwig/shelfmark/app/repository"
	"github.com/mhartwig/shelfmark/internal/pkg/entitlements"
)

func HandleStart(c *fiber.Ctx) error {
	repos := repository.GetGlobalFactory().GetRepositories()

	updates, err := repos.ReadingUpdate.GetPublicFeed(0, 10)
	if err != nil {
		updates = nil
	}

	recentBooks, err := repos.Book.GetRecentPublic(12)
	if err != nil {
		recentBooks = nil
	}

	return renderPage(c, "index", "Your reading, tracked", fiber.Map{
		"Updates":     updates,
		"RecentBooks": recentBooks,
	})
}

func HandleAbout(c *fiber.Ctx) error {
	return renderPage(c, "about", "About", fiber.Map{})
}

// HandlePricing shows the paid tiers with their limits
func HandlePricing(c *fiber.Ctx) error {
	plans := []fiber.Map{
		{"Name": "free", "Months": 0, "Limits": entitlements.LimitsFor(entitlements.PlanFree)},
		{"Name": "explorer", "Months": 3, "Limits": entitlements.LimitsFor(entitlements.PlanExplorer)},
		{"Name": "traveler", "Months": 6, "Limits": entitlements.LimitsFor(entitlements.PlanTraveler)},
		{"Name": "devourer", "Months": 12, "Limits": entitlements.LimitsFor(entitlements.PlanDevourer)},
	}

	return renderPage(c, "pricing", "Pricing", fiber.Map{
		"Plans": plans,
	})
}
