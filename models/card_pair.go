package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CardPairUniverse is how many distinct pair values exist in the catalog.
// A deal picks PairsPerMatch of them at random.
const CardPairUniverse = 22

// CardPair is one entry of the fixed card catalog: a sign-language sign and
// the figure it names. Each dealt pair places the sign face on one slot and
// the figure face on its twin.
type CardPair struct {
	Value          int    `gorm:"primaryKey;autoIncrement:false" json:"value"`
	SignImageURL   string `gorm:"not null" json:"sign_image_url"`
	FigureImageURL string `gorm:"not null" json:"figure_image_url"`
	Description    string `json:"description"`
}

// SeedCardPairs upserts the full catalog. Idempotent, safe to run at every
// startup after AutoMigrate.
func SeedCardPairs(db *gorm.DB) error {
	pairs := make([]CardPair, 0, CardPairUniverse)
	for v := 1; v <= CardPairUniverse; v++ {
		pairs = append(pairs, CardPair{
			Value:          v,
			SignImageURL:   fmt.Sprintf("/assets/signs/sign-%d.jpg", v),
			FigureImageURL: fmt.Sprintf("/assets/figures/figure-%d.jpg", v),
			Description:    fmt.Sprintf("Sign language card %d", v),
		})
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "value"}},
		DoUpdates: clause.AssignmentColumns([]string{"sign_image_url", "figure_image_url", "description"}),
	}).Create(&pairs).Error
}
