package models

import "time"

// User is the persisted account record. PasswordHash and RefreshToken are
// credential material and must never appear in a response payload; handlers
// project users through a sanitized DTO instead of serializing this struct.
type User struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	PasswordHash  []byte
	AvatarURL     string
	CoverImageURL string

	// RefreshToken is the single live refresh-token slot. Issuing a new
	// refresh token overwrites it; nil means no active session.
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
