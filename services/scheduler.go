package services

import (
	"log"
	"time"

	"memory-match-system/models"

	"github.com/go-co-op/gocron/v2"
)

// Sweep policy: a revealed pair a disconnecting client never resolved is
// reset to hidden with a forced turn switch instead of waiting for the idle
// player's next poll. Waiting matches nobody joined are eventually cancelled.
const (
	sweepInterval      = 30 * time.Second
	abandonedPairAge   = 45 * time.Second
	staleWaitingMaxAge = 10 * time.Minute
)

// StartSweepScheduler runs the periodic cleanup jobs.
func (s *MatchService) StartSweepScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			s.sweepAbandonedPairs()
			s.sweepStaleWaiting()
		}),
	)
}

// sweepAbandonedPairs finds playing matches whose revealed slots have sat
// untouched past the abandonment window, hides them again and hands the turn
// to the opponent. Every mutation is the same conditional update the live
// path uses, so racing against a late client resolve stays safe.
func (s *MatchService) sweepAbandonedPairs() {
	cutoff := time.Now().Add(-abandonedPairAge)

	var matchIDs []string
	err := s.DB.Model(&models.GridSlot{}).
		Distinct("grid_slots.match_id").
		Joins("JOIN matches ON matches.id = grid_slots.match_id").
		Where("grid_slots.state = ? AND grid_slots.updated_at < ? AND matches.state = ?",
			models.SlotStateRevealed, cutoff, models.MatchStatePlaying).
		Pluck("grid_slots.match_id", &matchIDs).Error
	if err != nil {
		log.Printf("[SWEEP] abandoned pair lookup failed: %v", err)
		return
	}

	for _, matchID := range matchIDs {
		revealed, err := s.Store.RevealedByMatch(matchID)
		if err != nil || len(revealed) == 0 {
			continue
		}
		ids := make([]string, 0, len(revealed))
		for _, slot := range revealed {
			ids = append(ids, slot.ID)
		}
		n, err := s.Store.ResetToHidden(matchID, ids)
		if err != nil {
			log.Printf("[SWEEP] reset failed for match %s: %v", matchID, err)
			continue
		}
		if n == 0 {
			// A client resolve settled the pair first and owns the switch.
			continue
		}
		if err := s.Registry.SwitchTurn(matchID); err != nil {
			continue
		}
		log.Printf("[SWEEP] reset %d abandoned slot(s) in match %s, turn switched", n, matchID)
	}
}

// sweepStaleWaiting cancels waiting matches nobody joined in time.
func (s *MatchService) sweepStaleWaiting() {
	cutoff := time.Now().Add(-staleWaitingMaxAge)
	res := s.DB.Model(&models.Match{}).
		Where("state = ? AND created_at < ?", models.MatchStateWaiting, cutoff).
		Update("state", models.MatchStateCancelled)
	if res.Error != nil {
		log.Printf("[SWEEP] stale waiting sweep failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[SWEEP] cancelled %d stale waiting match(es)", res.RowsAffected)
	}
}
