package handlers

import (
	"memory-match-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService) {
	// 🔓 Public — no guest context, but still behind Gateway auth.
	app.Get("/leaderboard", leaderboardService.GetLeaderboard)
}
