package services

import (
	"errors"
	"log"
	"math/rand"

	"memory-match-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GridSlotStore owns the 36 card slots of each match. Slot content is
// immutable after Deal; state transitions follow the same conditional-update
// discipline as the registry so replayed client requests cannot double-count.
type GridSlotStore struct {
	DB *gorm.DB
}

func NewGridSlotStore(db *gorm.DB) *GridSlotStore {
	return &GridSlotStore{DB: db}
}

// Deal generates the one-time grid for a match: 18 of the 22 catalog values,
// each on two slots with opposite faces, shuffled uniformly across the 6×6
// board and persisted in one batch. A second deal for the same match is a
// conflict.
func (s *GridSlotStore) Deal(matchID string) ([]models.GridSlot, error) {
	var existing int64
	if err := s.DB.Model(&models.GridSlot{}).Where("match_id = ?", matchID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrConflict
	}

	var catalog []models.CardPair
	if err := s.DB.Order("value ASC").Find(&catalog).Error; err != nil {
		return nil, err
	}
	if len(catalog) < models.PairsPerMatch {
		return nil, errors.New("card catalog is not seeded")
	}

	rand.Shuffle(len(catalog), func(i, j int) {
		catalog[i], catalog[j] = catalog[j], catalog[i]
	})

	slots := make([]models.GridSlot, 0, models.GridSlotCount)
	for _, pair := range catalog[:models.PairsPerMatch] {
		slots = append(slots,
			models.GridSlot{
				ID:          uuid.NewString(),
				MatchID:     matchID,
				PairValue:   pair.Value,
				Variant:     models.VariantSign,
				State:       models.SlotStateHidden,
				ImageURL:    pair.SignImageURL,
				Description: pair.Description,
			},
			models.GridSlot{
				ID:          uuid.NewString(),
				MatchID:     matchID,
				PairValue:   pair.Value,
				Variant:     models.VariantFigure,
				State:       models.SlotStateHidden,
				ImageURL:    pair.FigureImageURL,
				Description: pair.Description,
			},
		)
	}

	rand.Shuffle(len(slots), func(i, j int) {
		slots[i], slots[j] = slots[j], slots[i]
	})
	for i := range slots {
		slots[i].RowPos = i / models.GridCols
		slots[i].ColPos = i % models.GridCols
	}

	if err := s.DB.Create(&slots).Error; err != nil {
		return nil, err
	}
	log.Printf("[GRID] dealt %d slots for match %s", len(slots), matchID)
	return slots, nil
}

// Reveal performs the hidden→revealed transition for one slot. Everything is
// re-checked at the moment of mutation, under the match row lock: the match
// is still playing with the turn held by turnPlayerID, the slot is still
// hidden, and fewer than two slots are revealed across the grid. Any failed
// check is a conflict — a third concurrent reveal is rejected, never silently
// evicts an older one.
func (s *GridSlotStore) Reveal(matchID, slotID, turnPlayerID string) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Touch the match row first. The write lock serializes concurrent
		// reveals of the same match, so the count guard below always sees the
		// winner's committed reveal instead of a stale snapshot where two
		// distinct slots each pass the < 2 check.
		match := tx.Model(&models.Match{}).
			Where("id = ? AND state = ? AND turn_player_id = ?",
				matchID, models.MatchStatePlaying, turnPlayerID).
			UpdateColumn("updated_at", gorm.Expr("updated_at"))
		if match.Error != nil {
			return match.Error
		}
		if match.RowsAffected == 0 {
			return ErrConflict
		}

		res := tx.Model(&models.GridSlot{}).
			Where("id = ? AND match_id = ? AND state = ?", slotID, matchID, models.SlotStateHidden).
			Where("(SELECT count(*) FROM grid_slots WHERE match_id = ? AND state = ?) < 2",
				matchID, models.SlotStateRevealed).
			Update("state", models.SlotStateRevealed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrConflict) {
		return err
	}
	var slot models.GridSlot
	if err := s.DB.First(&slot, "id = ? AND match_id = ?", slotID, matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

// ResetToHidden returns revealed slots to hidden after a mismatch and reports
// how many rows actually transitioned. Slots not currently revealed are left
// alone, so client retries are harmless no-ops; callers use the count to skip
// the follow-up turn switch when another settle path got there first.
func (s *GridSlotStore) ResetToHidden(matchID string, slotIDs []string) (int64, error) {
	res := s.DB.Model(&models.GridSlot{}).
		Where("id IN ? AND match_id = ? AND state = ?", slotIDs, matchID, models.SlotStateRevealed).
		Update("state", models.SlotStateHidden)
	return res.RowsAffected, res.Error
}

// MarkMatched performs revealed→matched for the given slots and reports how
// many rows actually transitioned. Matched is terminal, so a duplicate client
// retry affects zero rows — the caller uses the count to avoid awarding the
// same pair twice.
func (s *GridSlotStore) MarkMatched(matchID string, slotIDs []string) (int64, error) {
	res := s.DB.Model(&models.GridSlot{}).
		Where("id IN ? AND match_id = ? AND state = ?", slotIDs, matchID, models.SlotStateRevealed).
		Update("state", models.SlotStateMatched)
	return res.RowsAffected, res.Error
}

// ListByMatch returns the full grid snapshot in board order.
func (s *GridSlotStore) ListByMatch(matchID string) ([]models.GridSlot, error) {
	var slots []models.GridSlot
	err := s.DB.
		Where("match_id = ?", matchID).
		Order("row_pos ASC, col_pos ASC").
		Find(&slots).Error
	return slots, err
}

// RevealedByMatch returns the currently revealed slots (at most two).
func (s *GridSlotStore) RevealedByMatch(matchID string) ([]models.GridSlot, error) {
	var slots []models.GridSlot
	err := s.DB.
		Where("match_id = ? AND state = ?", matchID, models.SlotStateRevealed).
		Order("updated_at ASC").
		Find(&slots).Error
	return slots, err
}

// GetSlots fetches specific slots of a match.
func (s *GridSlotStore) GetSlots(matchID string, slotIDs []string) ([]models.GridSlot, error) {
	var slots []models.GridSlot
	err := s.DB.
		Where("id IN ? AND match_id = ?", slotIDs, matchID).
		Find(&slots).Error
	return slots, err
}

// AllMatched reports whether every slot of the grid has reached matched.
func (s *GridSlotStore) AllMatched(matchID string) (bool, error) {
	var remaining int64
	err := s.DB.Model(&models.GridSlot{}).
		Where("match_id = ? AND state <> ?", matchID, models.SlotStateMatched).
		Count(&remaining).Error
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	var total int64
	if err := s.DB.Model(&models.GridSlot{}).Where("match_id = ?", matchID).Count(&total).Error; err != nil {
		return false, err
	}
	return total == int64(models.GridSlotCount), nil
}
