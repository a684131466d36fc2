package services

import (
	"errors"
	"log"

	"memory-match-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchRegistry owns match records and exposes every lifecycle change as a
// conditional transition: read-modify-write is replaced by a single UPDATE
// whose WHERE clause re-checks the precondition, so any number of stateless
// handler instances can race safely without in-process locks. RowsAffected==0
// means someone else advanced the state first.
type MatchRegistry struct {
	DB *gorm.DB
}

func NewMatchRegistry(db *gorm.DB) *MatchRegistry {
	return &MatchRegistry{DB: db}
}

// CreateWaiting inserts a fresh match in the waiting state. No precondition.
func (r *MatchRegistry) CreateWaiting(creatorID string) (*models.Match, error) {
	m := &models.Match{
		ID:        uuid.NewString(),
		State:     models.MatchStateWaiting,
		Player1ID: creatorID,
	}
	if err := r.DB.Create(m).Error; err != nil {
		return nil, err
	}
	log.Printf("[REGISTRY] match %s created waiting by %s", m.ID, creatorID)
	return m, nil
}

// Get fetches one match by id.
func (r *MatchRegistry) Get(matchID string) (*models.Match, error) {
	var m models.Match
	if err := r.DB.First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ClaimWaiting discovers the oldest waiting match not created by
// excludePlayerID. Discovery only — it mutates nothing, so two callers may
// claim the same match and Join decides the single winner.
func (r *MatchRegistry) ClaimWaiting(excludePlayerID string) (string, error) {
	var m models.Match
	err := r.DB.
		Where("state = ? AND player1_id <> ?", models.MatchStateWaiting, excludePlayerID).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return m.ID, nil
}

// Join performs the waiting→playing transition, seating joinerID as player 2
// and handing the first turn to the creator. The state check lives in the
// UPDATE itself: when two clients race on the same discovered match exactly
// one row is affected and the loser gets ErrConflict.
func (r *MatchRegistry) Join(matchID, joinerID string) error {
	res := r.DB.Model(&models.Match{}).
		Where("id = ? AND state = ? AND player1_id <> ?", matchID, models.MatchStateWaiting, joinerID).
		Updates(map[string]interface{}{
			"state":          models.MatchStatePlaying,
			"player2_id":     joinerID,
			"turn_player_id": gorm.Expr("player1_id"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(matchID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	log.Printf("[REGISTRY] match %s joined by %s, now playing", matchID, joinerID)
	return nil
}

// SwitchTurn flips the turn to the other seat, guarded by the playing state.
func (r *MatchRegistry) SwitchTurn(matchID string) error {
	res := r.DB.Model(&models.Match{}).
		Where("id = ? AND state = ?", matchID, models.MatchStatePlaying).
		Update("turn_player_id", gorm.Expr(
			"CASE WHEN turn_player_id = player1_id THEN player2_id ELSE player1_id END"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// IncrementScore adds one point to whichever seat playerID holds, guarded by
// the playing state. Scores only ever grow.
func (r *MatchRegistry) IncrementScore(matchID, playerID string) error {
	res := r.DB.Model(&models.Match{}).
		Where("id = ? AND state = ? AND player1_id = ?", matchID, models.MatchStatePlaying, playerID).
		Update("player1_score", gorm.Expr("player1_score + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	res = r.DB.Model(&models.Match{}).
		Where("id = ? AND state = ? AND player2_id = ?", matchID, models.MatchStatePlaying, playerID).
		Update("player2_score", gorm.Expr("player2_score + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Finish performs the playing→finished transition.
func (r *MatchRegistry) Finish(matchID string) error {
	res := r.DB.Model(&models.Match{}).
		Where("id = ? AND state = ?", matchID, models.MatchStatePlaying).
		Update("state", models.MatchStateFinished)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	log.Printf("[REGISTRY] match %s finished", matchID)
	return nil
}

// Cancel ends a waiting or playing match by explicit player action.
func (r *MatchRegistry) Cancel(matchID string) error {
	res := r.DB.Model(&models.Match{}).
		Where("id = ? AND state IN ?", matchID, []string{models.MatchStateWaiting, models.MatchStatePlaying}).
		Update("state", models.MatchStateCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	log.Printf("[REGISTRY] match %s cancelled", matchID)
	return nil
}

// CancelStaleWaiting cancels every waiting match playerID previously created,
// so a retrying caller never accumulates orphaned waiting matches. Returns
// how many were swept.
func (r *MatchRegistry) CancelStaleWaiting(playerID string) (int64, error) {
	res := r.DB.Model(&models.Match{}).
		Where("player1_id = ? AND state = ?", playerID, models.MatchStateWaiting).
		Update("state", models.MatchStateCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[REGISTRY] swept %d stale waiting match(es) for %s", res.RowsAffected, playerID)
	}
	return res.RowsAffected, nil
}

// ActiveMatchFor returns the playing match playerID is seated in, if any.
func (r *MatchRegistry) ActiveMatchFor(playerID string) (*models.Match, error) {
	var m models.Match
	err := r.DB.
		Where("state = ? AND (player1_id = ? OR player2_id = ?)", models.MatchStatePlaying, playerID, playerID).
		Order("updated_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
