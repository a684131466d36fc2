package middleware

import (
	"log"

	"memory-match-system/models"
	"memory-match-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GuestContextMiddleware re-derives the caller's identity on every request
// from the guest session token (cookie or X-Guest-Token header). The
// Authorization header is not consulted: it carries the gateway service token
// on every request. Nothing is cached between requests: the token is the only
// proof of identity. Verified display attributes are upserted into the local
// guest snapshot so views and the leaderboard can resolve usernames.
func GuestContextMiddleware(tokens *services.TokenService, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies("guest_session_token")
		if token == "" {
			token = c.Get("X-Guest-Token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "guest session token missing",
			})
		}

		identity, err := tokens.VerifyGuestIdentity(token)
		if err != nil {
			log.Printf("🚫 [GUEST_CTX] invalid guest token on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid guest session token",
			})
		}

		guest := models.GuestUser{
			UserID:            identity.PlayerID,
			Username:          identity.Username,
			ProfileIconNumber: identity.ProfileIconNumber,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "profile_icon_number"}),
		}).Create(&guest).Error; err != nil {
			log.Printf("⚠️ [GUEST_CTX] snapshot upsert failed for %s: %v", identity.PlayerID, err)
		}

		c.Locals("guest_id", identity.PlayerID)
		c.Locals("guest_username", identity.Username)
		c.Locals("guest_icon", identity.ProfileIconNumber)

		return c.Next()
	}
}
