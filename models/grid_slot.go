package models

import "time"

// Grid dimensions — fixed 6×6 board, 18 pairs dealt per match.
const (
	GridRows      = 6
	GridCols      = 6
	GridSlotCount = GridRows * GridCols
	PairsPerMatch = GridSlotCount / 2
)

// Per-slot states. Matched is terminal for a slot.
const (
	SlotStateHidden   = "hidden"
	SlotStateRevealed = "revealed"
	SlotStateMatched  = "matched"
)

// The two faces a pair value appears on. A slot's twin carries the same
// pair value with the other variant.
const (
	VariantSign   = "sign"
	VariantFigure = "figure"
)

// GridSlot is one cell of a match's 6×6 card grid. Content (pair value,
// variant, image) is fixed at deal time; only State mutates afterwards.
type GridSlot struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"slot_id"`
	MatchID string `gorm:"not null;uniqueIndex:idx_grid_slot_cell,priority:1" json:"match_id"`
	RowPos  int    `gorm:"not null;uniqueIndex:idx_grid_slot_cell,priority:2" json:"row"`
	ColPos  int    `gorm:"not null;uniqueIndex:idx_grid_slot_cell,priority:3" json:"col"`

	PairValue int    `gorm:"not null" json:"value"`
	Variant   string `gorm:"type:varchar(8);not null;check:variant IN ('sign','figure')" json:"variant"`
	State     string `gorm:"type:varchar(16);index;not null;check:state IN ('hidden','revealed','matched')" json:"state"`

	ImageURL    string `json:"image_url"`
	Description string `json:"description"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
