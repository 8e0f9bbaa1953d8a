package domain

import (
	"fmt"
	"math/rand"
	"regexp"
	"time"
)

// AccountLifetime is the nominal life of an anonymous account; it matches
// the 24-hour session cookie on the client.
const AccountLifetime = 24 * time.Hour

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// User is an inbox owner. MessageCount is derived from the live message
// collection and is never a source of truth on its own.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Avatar       string    `json:"avatar,omitempty"`
	Link         string    `json:"link,omitempty"`
	UsePin       bool      `json:"usePin"`
	Pin          string    `json:"pin,omitempty"`
	IsPublic     bool      `json:"isPublic"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func NewUser(id, username string, usePin bool, pin string, isPublic bool, now time.Time) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if usePin {
		if err := ValidatePin(pin); err != nil {
			return nil, err
		}
	} else {
		pin = ""
	}
	return &User{
		ID:        id,
		Username:  username,
		UsePin:    usePin,
		Pin:       pin,
		IsPublic:  isPublic,
		CreatedAt: now,
		ExpiresAt: now.Add(AccountLifetime),
	}, nil
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// Expired reports whether the account's session window has lapsed.
func (u *User) Expired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

var (
	usernameAdjectives = []string{"Cool", "Happy", "Bright", "Swift", "Clever", "Bold", "Kind", "Wise", "Fun", "Nice"}
	usernameNouns      = []string{"Star", "Moon", "Sun", "Wave", "Fire", "Wind", "Rain", "Snow", "Sky", "Sea"}
)

// GenerateUsername produces a throwaway handle like "SwiftStar42".
func GenerateUsername() string {
	adj := usernameAdjectives[rand.Intn(len(usernameAdjectives))]
	noun := usernameNouns[rand.Intn(len(usernameNouns))]
	return fmt.Sprintf("%s%s%d", adj, noun, rand.Intn(999)+1)
}
