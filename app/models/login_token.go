package models

import "time"

// LoginToken is a single-use magic-link token. The signed claims in the mail
// link reference TokenID; the row enforces single use and server-side expiry
// independent of the HMAC expiry in the claims.
type LoginToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	TokenID   string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_login_tokens_token" json:"token_id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt    *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
