package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up or renaming to a used email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidToken is returned for malformed, expired or revoked tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotFound is returned for unknown users.
	ErrNotFound = errors.New("user not found")
)

// ValidationError reports a malformed account field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// User is a staff account. Students and snapshots are owned by its ID.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	AvatarURL    string    `json:"avatar_url"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is the stored form of an issued refresh token.
type RefreshToken struct {
	Hash      string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
}
