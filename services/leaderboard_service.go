package services

import (
	"log"

	"memory-match-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// LeaderboardService is a read-only report over finished matches. It sits
// outside the coordination engine: no conditional transitions, just an
// aggregate both seats contribute to.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

type LeaderboardEntry struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	ProfileIconNumber int    `json:"profile_icon_number"`
	TotalScore        int64  `json:"total_score"`
}

// TopPlayers returns the ten best total scores across finished matches.
func (s *LeaderboardService) TopPlayers() ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := s.DB.Raw(`
		SELECT gu.user_id, gu.username, gu.profile_icon_number, SUM(scores.score) AS total_score
		FROM guest_users gu
		JOIN (
			SELECT player1_id AS user_id, player1_score AS score FROM matches WHERE state = ?
			UNION ALL
			SELECT player2_id AS user_id, player2_score AS score FROM matches WHERE state = ? AND player2_id IS NOT NULL
		) scores ON scores.user_id = gu.user_id
		GROUP BY gu.user_id, gu.username, gu.profile_icon_number
		ORDER BY total_score DESC
		LIMIT 10`,
		models.MatchStateFinished, models.MatchStateFinished,
	).Scan(&entries).Error
	return entries, err
}

// GetLeaderboard serves the public top-players report.
func (s *LeaderboardService) GetLeaderboard(c *fiber.Ctx) error {
	entries, err := s.TopPlayers()
	if err != nil {
		log.Printf("[LEADERBOARD] query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch leaderboard"})
	}
	return c.JSON(fiber.Map{"topPlayers": entries})
}
