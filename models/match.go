package models

import "time"

// Match lifecycle states. Finished and cancelled are terminal — no further
// mutation is permitted once a match reaches either of them.
const (
	MatchStateWaiting   = "waiting"
	MatchStatePlaying   = "playing"
	MatchStateFinished  = "finished"
	MatchStateCancelled = "cancelled"
)

// Match records one two-player memory game session.
// Player2ID and TurnPlayerID are nil while the match is still waiting for an
// opponent. Both players write to the same row concurrently, so every state
// change goes through a guarded conditional update (see services.MatchRegistry).
type Match struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	State string `gorm:"type:varchar(16);index;not null;check:state IN ('waiting','playing','finished','cancelled')" json:"state"`

	Player1ID    string  `gorm:"index;not null" json:"player1_id"`
	Player2ID    *string `gorm:"index" json:"player2_id,omitempty"`
	Player1Score int     `gorm:"not null;default:0" json:"player1_score"`
	Player2Score int     `gorm:"not null;default:0" json:"player2_score"`

	// TurnPlayerID always holds player1_id or player2_id while playing.
	TurnPlayerID *string `json:"turn_player_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsParticipant reports whether playerID holds one of the two seats.
func (m *Match) IsParticipant(playerID string) bool {
	if m.Player1ID == playerID {
		return true
	}
	return m.Player2ID != nil && *m.Player2ID == playerID
}

// IsTurnOf reports whether it is currently playerID's turn.
func (m *Match) IsTurnOf(playerID string) bool {
	return m.TurnPlayerID != nil && *m.TurnPlayerID == playerID
}
