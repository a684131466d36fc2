package services

import (
	"fmt"
	"strings"
	"testing"

	"memory-match-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database per test, migrated and with the
// card catalog seeded. A single connection keeps sqlite serialization out of
// the way — the conditional updates under test behave the same either way.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Match{},
		&models.GridSlot{},
		&models.GuestUser{},
		&models.CardPair{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	if err := models.SeedCardPairs(db); err != nil {
		t.Fatalf("seed card catalog: %v", err)
	}
	return db
}

// newPlayingMatch creates a match between p1 and p2 with its grid dealt; the
// turn starts with p1.
func newPlayingMatch(t *testing.T, db *gorm.DB, p1, p2 string) *models.Match {
	t.Helper()

	registry := NewMatchRegistry(db)
	store := NewGridSlotStore(db)

	m, err := registry.CreateWaiting(p1)
	if err != nil {
		t.Fatalf("create waiting: %v", err)
	}
	if _, err := store.Deal(m.ID); err != nil {
		t.Fatalf("deal: %v", err)
	}
	if err := registry.Join(m.ID, p2); err != nil {
		t.Fatalf("join: %v", err)
	}
	m, err = registry.Get(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return m
}

func addGuest(t *testing.T, db *gorm.DB, id, username string, icon int) {
	t.Helper()
	if err := db.Create(&models.GuestUser{
		UserID:            id,
		Username:          username,
		ProfileIconNumber: icon,
	}).Error; err != nil {
		t.Fatalf("create guest %s: %v", id, err)
	}
}
