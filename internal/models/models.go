package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedProfile is returned when a profile payload is missing a required field.
var ErrMalformedProfile = errors.New("malformed profile")

// User is the logged-in identity. Token is only set when the server issues one.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the user's token has a known expiry in the past.
func (u User) Expired(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && now.After(u.ExpiresAt)
}

// Profile is a candidate shown in the queue. Immutable once fetched.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
	Avatar string `json:"avatar"`
}

// wireProfile accepts both "_id" (document stores) and "id".
type wireProfile struct {
	MongoID *string `json:"_id"`
	ID      *string `json:"id"`
	Name    *string `json:"name"`
	Bio     string  `json:"bio"`
	Avatar  string  `json:"avatar"`
}

// UnmarshalJSON decodes a profile and rejects payloads without id or name.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var w wireProfile
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}

	id := ""
	switch {
	case w.ID != nil && strings.TrimSpace(*w.ID) != "":
		id = *w.ID
	case w.MongoID != nil:
		id = *w.MongoID
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedProfile)
	}
	if w.Name == nil {
		return fmt.Errorf("%w: missing name for %s", ErrMalformedProfile, id)
	}

	*p = Profile{ID: id, Name: *w.Name, Bio: w.Bio, Avatar: w.Avatar}
	return nil
}

// Verdict is the reaction a user gives a candidate.
type Verdict string

const (
	Like    Verdict = "like"
	Dislike Verdict = "dislike"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	return v == Like || v == Dislike
}

// Decision is sent once and never retained.
type Decision struct {
	Subject string
	Target  string
	Verdict Verdict
}

// MatchEvent is a mutual like announced by the realtime channel.
type MatchEvent struct {
	Profile    Profile
	ReceivedAt time.Time
}
