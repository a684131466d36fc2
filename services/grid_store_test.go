package services

import (
	"errors"
	"sync"
	"testing"

	"memory-match-system/models"
)

func TestDealShape(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	registry := NewMatchRegistry(db)

	m, _ := registry.CreateWaiting("p1")
	slots, err := store.Deal(m.ID)
	if err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if len(slots) != models.GridSlotCount {
		t.Fatalf("dealt %d slots, want %d", len(slots), models.GridSlotCount)
	}

	type pairFaces struct{ sign, figure int }
	byValue := map[int]*pairFaces{}
	cells := map[[2]int]bool{}
	for _, slot := range slots {
		if slot.State != models.SlotStateHidden {
			t.Errorf("slot %s dealt in state %q, want hidden", slot.ID, slot.State)
		}
		if slot.RowPos < 0 || slot.RowPos >= models.GridRows || slot.ColPos < 0 || slot.ColPos >= models.GridCols {
			t.Errorf("slot %s at (%d,%d) outside the board", slot.ID, slot.RowPos, slot.ColPos)
		}
		cell := [2]int{slot.RowPos, slot.ColPos}
		if cells[cell] {
			t.Errorf("cell (%d,%d) dealt twice", slot.RowPos, slot.ColPos)
		}
		cells[cell] = true

		if byValue[slot.PairValue] == nil {
			byValue[slot.PairValue] = &pairFaces{}
		}
		switch slot.Variant {
		case models.VariantSign:
			byValue[slot.PairValue].sign++
		case models.VariantFigure:
			byValue[slot.PairValue].figure++
		default:
			t.Errorf("slot %s has variant %q", slot.ID, slot.Variant)
		}
	}
	if len(byValue) != models.PairsPerMatch {
		t.Errorf("dealt %d distinct values, want %d", len(byValue), models.PairsPerMatch)
	}
	for value, faces := range byValue {
		if faces.sign != 1 || faces.figure != 1 {
			t.Errorf("value %d has %d sign / %d figure faces, want 1/1", value, faces.sign, faces.figure)
		}
		if value < 1 || value > models.CardPairUniverse {
			t.Errorf("value %d outside catalog universe", value)
		}
	}
}

func TestDealOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	registry := NewMatchRegistry(db)

	m, _ := registry.CreateWaiting("p1")
	if _, err := store.Deal(m.ID); err != nil {
		t.Fatalf("first deal: %v", err)
	}
	if _, err := store.Deal(m.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second deal err = %v, want conflict", err)
	}
}

func TestRevealCapAndGuards(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	slots, _ := store.ListByMatch(m.ID)

	if err := store.Reveal(m.ID, slots[0].ID, "p1"); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	// replay of the same flip must be rejected, not double-counted
	if err := store.Reveal(m.ID, slots[0].ID, "p1"); !errors.Is(err, ErrConflict) {
		t.Errorf("re-reveal err = %v, want conflict", err)
	}
	if err := store.Reveal(m.ID, slots[1].ID, "p1"); err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	// a third reveal must be rejected rather than evicting an older one
	if err := store.Reveal(m.ID, slots[2].ID, "p1"); !errors.Is(err, ErrConflict) {
		t.Errorf("third reveal err = %v, want conflict", err)
	}

	revealed, err := store.RevealedByMatch(m.ID)
	if err != nil {
		t.Fatalf("RevealedByMatch: %v", err)
	}
	if len(revealed) != 2 {
		t.Errorf("revealed count = %d, want 2", len(revealed))
	}
}

func TestRevealChecksTurnAtMutation(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	slots, _ := store.ListByMatch(m.ID)

	// turn belongs to p1 — a reveal on behalf of p2 must not commit
	if err := store.Reveal(m.ID, slots[0].ID, "p2"); !errors.Is(err, ErrConflict) {
		t.Errorf("out-of-turn reveal err = %v, want conflict", err)
	}
	got, _ := store.GetSlots(m.ID, []string{slots[0].ID})
	if got[0].State != models.SlotStateHidden {
		t.Errorf("slot state = %q, want hidden after rejected reveal", got[0].State)
	}
}

func TestConcurrentRevealsCapAtTwo(t *testing.T) {
	// With one slot already revealed, racing reveals of distinct hidden slots
	// must admit exactly one winner. The reveal serializes on the match row,
	// so no pair of racers can each pass the < 2 count against a stale view.
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	slots, _ := store.ListByMatch(m.ID)
	if err := store.Reveal(m.ID, slots[0].ID, "p1"); err != nil {
		t.Fatalf("first reveal: %v", err)
	}

	const racers = 6
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 1; i <= racers; i++ {
		wg.Add(1)
		go func(slotID string) {
			defer wg.Done()
			results <- store.Reveal(m.ID, slotID, "p1")
		}(slots[i].ID)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != racers-1 {
		t.Errorf("wins/conflicts = %d/%d, want 1/%d", wins, conflicts, racers-1)
	}

	var revealed int64
	db.Model(&models.GridSlot{}).
		Where("match_id = ? AND state = ?", m.ID, models.SlotStateRevealed).
		Count(&revealed)
	if revealed != 2 {
		t.Errorf("revealed count = %d, want capped at 2", revealed)
	}
}

func TestRevealMissingSlot(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	if err := store.Reveal(m.ID, "no-such-slot", "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestResetToHiddenIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	slots, _ := store.ListByMatch(m.ID)
	ids := []string{slots[0].ID, slots[1].ID}
	store.Reveal(m.ID, ids[0], "p1")
	store.Reveal(m.ID, ids[1], "p1")

	n, err := store.ResetToHidden(m.ID, ids)
	if err != nil {
		t.Fatalf("ResetToHidden: %v", err)
	}
	if n != 2 {
		t.Errorf("transitioned %d rows, want 2", n)
	}
	got, _ := store.GetSlots(m.ID, ids)
	for _, slot := range got {
		if slot.State != models.SlotStateHidden {
			t.Errorf("slot %s state = %q, want hidden", slot.ID, slot.State)
		}
	}

	// already hidden — must be a silent no-op reporting zero transitions
	n, err = store.ResetToHidden(m.ID, ids)
	if err != nil {
		t.Errorf("second reset: %v", err)
	}
	if n != 0 {
		t.Errorf("replay transitioned %d rows, want 0", n)
	}
}

func TestMarkMatchedIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	slots, _ := store.ListByMatch(m.ID)
	ids := []string{slots[0].ID, slots[1].ID}
	store.Reveal(m.ID, ids[0], "p1")
	store.Reveal(m.ID, ids[1], "p1")

	n, err := store.MarkMatched(m.ID, ids)
	if err != nil {
		t.Fatalf("MarkMatched: %v", err)
	}
	if n != 2 {
		t.Errorf("transitioned %d rows, want 2", n)
	}

	n, err = store.MarkMatched(m.ID, ids)
	if err != nil {
		t.Fatalf("replayed MarkMatched: %v", err)
	}
	if n != 0 {
		t.Errorf("replay transitioned %d rows, want 0", n)
	}

	got, _ := store.GetSlots(m.ID, ids)
	for _, slot := range got {
		if slot.State != models.SlotStateMatched {
			t.Errorf("slot %s state = %q, want matched", slot.ID, slot.State)
		}
	}
}

func TestAllMatched(t *testing.T) {
	db := newTestDB(t)
	store := NewGridSlotStore(db)
	m := newPlayingMatch(t, db, "p1", "p2")

	done, err := store.AllMatched(m.ID)
	if err != nil {
		t.Fatalf("AllMatched: %v", err)
	}
	if done {
		t.Error("AllMatched true on a fresh grid")
	}

	if err := db.Model(&models.GridSlot{}).Where("match_id = ?", m.ID).
		Update("state", models.SlotStateMatched).Error; err != nil {
		t.Fatalf("force matched: %v", err)
	}
	done, err = store.AllMatched(m.ID)
	if err != nil {
		t.Fatalf("AllMatched: %v", err)
	}
	if !done {
		t.Error("AllMatched false after all 36 slots matched")
	}
}
