// Package session persists the anonymous account identifier between runs,
// the way the web client keeps it in a 24-hour cookie. Expiry of the account
// itself is checked by the caller after fetching the user; the resolver only
// refuses identifiers whose own cookie window has lapsed.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ast-secret/inboxcore/internal/domain"
)

type record struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Resolver struct {
	path string
	now  func() time.Time
}

func NewResolver(path string) *Resolver {
	return &Resolver{path: path, now: time.Now}
}

// Resolve returns the persisted user id, or ok=false when no identity is
// available. It has no side effects beyond the read.
func (r *Resolver) Resolve() (string, bool) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return "", false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", false
	}
	if rec.UserID == "" || r.now().After(rec.ExpiresAt) {
		return "", false
	}
	return rec.UserID, true
}

// Save records the identifier with the nominal cookie lifetime.
func (r *Resolver) Save(userID string) error {
	rec := record{
		UserID:    userID,
		ExpiresAt: r.now().Add(domain.AccountLifetime),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(r.path, raw, 0o600)
}

func (r *Resolver) Clear() error {
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
