package models

import "time"

// RefreshToken represents a persisted refresh token session.
type RefreshToken struct {
	ID        string     `doc:"id" json:"id"`
	UserID    string     `doc:"userId" json:"user_id"`
	Token     string     `doc:"token" json:"token"`
	ExpiresAt time.Time  `doc:"expiresAt" json:"expires_at"`
	CreatedAt time.Time  `doc:"createdAt" json:"created_at"`
	Revoked   bool       `doc:"revoked" json:"revoked"`
	RevokedAt *time.Time `doc:"revokedAt" json:"revoked_at,omitempty"`
	IPAddress string     `doc:"ip" json:"ip_address"`
	UserAgent string     `doc:"userAgent" json:"user_agent"`
}
