package domain

import (
	"regexp"
	"strings"
	"time"
)

const MaxContentLength = 500

// ReactionKind is one of the three fixed reaction counters on a message.
type ReactionKind string

const (
	ReactionHeart ReactionKind = "heart"
	ReactionFire  ReactionKind = "fire"
	ReactionLaugh ReactionKind = "laugh"
)

func ParseReactionKind(s string) (ReactionKind, error) {
	switch ReactionKind(s) {
	case ReactionHeart, ReactionFire, ReactionLaugh:
		return ReactionKind(s), nil
	}
	return "", ErrInvalidReaction
}

// Reactions holds per-kind counters. Counters only ever increase over a
// message's lifetime; Merge enforces that.
type Reactions struct {
	Heart int `json:"heart"`
	Fire  int `json:"fire"`
	Laugh int `json:"laugh"`
}

func (r Reactions) Count(kind ReactionKind) int {
	switch kind {
	case ReactionHeart:
		return r.Heart
	case ReactionFire:
		return r.Fire
	case ReactionLaugh:
		return r.Laugh
	}
	return 0
}

func (r *Reactions) Increment(kind ReactionKind) {
	switch kind {
	case ReactionHeart:
		r.Heart++
	case ReactionFire:
		r.Fire++
	case ReactionLaugh:
		r.Laugh++
	}
}

func (r Reactions) Total() int {
	return r.Heart + r.Fire + r.Laugh
}

// Merge takes authoritative counts but never lets a counter go backwards,
// so a stale event cannot roll back a reaction.
func (r Reactions) Merge(authoritative Reactions) Reactions {
	return Reactions{
		Heart: max(r.Heart, authoritative.Heart),
		Fire:  max(r.Fire, authoritative.Fire),
		Laugh: max(r.Laugh, authoritative.Laugh),
	}
}

// Message Invariants:
// 1. ID is unique within an inbox and immutable.
// 2. Content, Timestamp and IsPublic are fixed at creation.
// 3. IsRead transitions false -> true exactly once.
// 4. Reply is set at most once, together with ReplyTimestamp.
// 5. Reaction counters never decrease.
type Message struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	Timestamp      time.Time  `json:"timestamp"`
	Reactions      Reactions  `json:"reactions"`
	IsRead         bool       `json:"isRead"`
	IsPublic       bool       `json:"isPublic"`
	Reply          string     `json:"reply,omitempty"`
	ReplyTimestamp *time.Time `json:"replyTimestamp,omitempty"`
}

func NewMessage(id, content string, isPublic bool, now time.Time) (*Message, error) {
	if id == "" {
		return nil, Invalid("message id cannot be empty")
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Content:   strings.TrimSpace(content),
		Timestamp: now,
		IsPublic:  isPublic,
	}, nil
}

func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyContent
	}
	if len([]rune(trimmed)) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

func (m *Message) HasReply() bool { return m.Reply != "" }

var pinPattern = regexp.MustCompile(`^\d{4}$`)

func ValidatePin(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPin
	}
	return nil
}
