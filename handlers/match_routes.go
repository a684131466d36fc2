package handlers

import (
	"memory-match-system/middleware"
	"memory-match-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService, db *gorm.DB) {
	// 🔐 Every match route requires a verified guest identity; mutating match
	// routes additionally check the X-Match-Token binding inside the handler.
	secured := app.Group("/", middleware.GuestContextMiddleware(matchService.Tokens, db))

	secured.Get("/matches/active", matchService.ActiveMatch)
	secured.Get("/matches/:id", matchService.GetMatch)
	secured.Get("/matches/:id/turn", matchService.GetCurrentTurn)
	secured.Get("/matches/:id/slots", matchService.ListSlots)

	secured.Post("/matches", matchService.CreateMatch)
	secured.Post("/matches/find", matchService.FindMatch)
	secured.Post("/matches/stale/cancel", matchService.CancelStaleWaiting)
	secured.Post("/matches/:id/join", matchService.JoinMatch)
	secured.Post("/matches/:id/flip", matchService.FlipSlot)
	secured.Post("/matches/:id/resolve", matchService.ResolvePendingPair)
	secured.Post("/matches/:id/finish", matchService.FinishMatch)
	secured.Post("/matches/:id/cancel", matchService.CancelMatch)
}
