package domain

import "time"

type User struct {
	ID              string
	Email           string
	Name            string
	Image           string
	Phone           string
	Role            string
	YelpAccessToken *string // sealed, see internal/secret
	YelpTokenExpiry *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
}

type Session struct {
	Token     string
	UserID    string
	Expires   time.Time
	CreatedAt time.Time
}

// Identity is the minimal user view attached to an authenticated request.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// GoogleIdentity holds the claims taken from a verified Google ID token.
type GoogleIdentity struct {
	Email   string
	Name    string
	Picture string
}
