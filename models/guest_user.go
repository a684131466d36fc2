package models

import "time"

// GuestUser is a local snapshot of guest display data owned by the identity
// service. Populated from verified session token claims on each request and
// refreshed by the guest sync worker. The engine never mints guest identities;
// it only mirrors what the identity service already issued.
type GuestUser struct {
	UserID            string `gorm:"primaryKey" json:"user_id"`
	Username          string `gorm:"index;not null" json:"username"`
	ProfileIconNumber int    `gorm:"not null;default:1" json:"profile_icon_number"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
