package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"memory-match-system/models"
	"memory-match-system/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GuestProfile matches the JSON the identity service returns for one guest.
type GuestProfile struct {
	UserID            string    `json:"user_id"`
	Username          string    `json:"username"`
	ProfileIconNumber int       `json:"profile_icon_number"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type GetGuestChangesResponse struct {
	Guests []GuestProfile `json:"guests"`
}

// GuestSyncWorker periodically pulls guest display attributes from the
// identity service into the local guest_users snapshot, so usernames and
// icons survive token expiry. The engine itself only ever reads the snapshot.
type GuestSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	serviceToken string
	httpClient   *http.Client
}

func NewGuestSyncWorker(db *gorm.DB, identityServiceURL, serviceToken string) *GuestSyncWorker {
	return &GuestSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      identityServiceURL,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *GuestSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Guest Sync Worker (identity service → guest_users)…")
	go w.run(ctx)
}

func (w *GuestSyncWorker) run(ctx context.Context) {
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial guest sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("❌ Guest sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Guest Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt in the local snapshot.
func (w *GuestSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM guest_users").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches guest changes since the given time and upserts them.
func (w *GuestSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid identity service URL %q: %w", w.baseURL, err)
	}
	base = base.JoinPath("/api/v1/public/guests")
	q := base.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	base.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", base.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity service returned %d: %s", resp.StatusCode, string(body))
	}

	var out GetGuestChangesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to decode guest changes: %w", err)
	}
	if len(out.Guests) == 0 {
		return nil
	}

	guests := make([]models.GuestUser, 0, len(out.Guests))
	for _, g := range out.Guests {
		if g.UserID == "" {
			continue
		}
		icon := g.ProfileIconNumber
		if icon < 1 {
			icon = 1
		}
		guests = append(guests, models.GuestUser{
			UserID:            g.UserID,
			Username:          g.Username,
			ProfileIconNumber: icon,
		})
	}
	if len(guests) == 0 {
		return nil
	}

	err = w.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "profile_icon_number"}),
	}).Create(&guests).Error
	if err != nil {
		return fmt.Errorf("guest snapshot upsert failed: %w", err)
	}

	log.Printf("[SYNC] upserted %d guest profile(s)", len(guests))
	return nil
}
