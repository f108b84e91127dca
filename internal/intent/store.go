// Package intent keeps a customer's unfinished booking selection across a
// forced re-authentication.  An intent is a short-lived resumable record:
// Preserve hands back a token that expires with it, and anything stale or
// unreadable is discarded on the next read.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// DefaultWindow is how long a preserved intent stays restorable.
const DefaultWindow = 30 * time.Minute

var (
	// ErrInvalidIntent is returned by Preserve for an intent missing a
	// resource, date or positive quantity.
	ErrInvalidIntent = errors.New("booking intent is incomplete")
	// ErrTokenMismatch is returned by Resume when the stored intent was
	// preserved under a different token.
	ErrTokenMismatch = errors.New("booking intent token does not match")
)

// Backend is the key-value storage behind a Store.  Get reports ok=false for
// a missing key.  Implementations may use ttl to expire keys themselves.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Token identifies one preserved intent and when it stops being restorable.
type Token struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type record struct {
	model.BookingIntent
	TokenID string `json:"token_id,omitempty"`
}

// Store reads and writes the single intent of one owner.
type Store struct {
	backend Backend
	key     string
	window  time.Duration
	now     func() time.Time
}

// Key returns the storage key for an owner's intent.
func Key(owner string) string { return "booking_intent:" + owner }

// NewStore returns a Store for owner.  A zero window means DefaultWindow and
// a nil now means time.Now.
func NewStore(b Backend, owner string, window time.Duration, now func() time.Time) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Store{backend: b, key: Key(owner), window: window, now: now}
}

// Preserve stamps in with the current time and stores it, replacing any
// previous intent.
func (s *Store) Preserve(ctx context.Context, in model.BookingIntent) (Token, error) {
	if in.ResourceID == 0 || in.Date == "" || in.Quantity <= 0 {
		return Token{}, ErrInvalidIntent
	}
	now := s.now()
	in.Timestamp = now
	rec := record{BookingIntent: in, TokenID: uuid.NewString()}
	body, err := json.Marshal(rec)
	if err != nil {
		return Token{}, fmt.Errorf("encode intent: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, body, s.window); err != nil {
		return Token{}, fmt.Errorf("store intent: %w", err)
	}
	return Token{ID: rec.TokenID, ExpiresAt: now.Add(s.window)}, nil
}

// Restore returns the preserved intent, or nil when there is none.  A record
// that does not decode, lacks a required field or is older than the window
// is deleted before nil is returned.
func (s *Store) Restore(ctx context.Context) (*model.BookingIntent, error) {
	rec, err := s.load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return &rec.BookingIntent, nil
}

// Resume is Restore for a caller holding a token.  The intent is left in
// place on a mismatch.
func (s *Store) Resume(ctx context.Context, tokenID string) (*model.BookingIntent, error) {
	rec, err := s.load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.TokenID != tokenID {
		return nil, ErrTokenMismatch
	}
	return &rec.BookingIntent, nil
}

// HasIntent reports whether a restorable intent exists.
func (s *Store) HasIntent(ctx context.Context) (bool, error) {
	in, err := s.Restore(ctx)
	return in != nil, err
}

// Clear deletes the intent.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, s.key)
}

// Age returns how long ago the restorable intent was preserved; ok is false
// when there is none.
func (s *Store) Age(ctx context.Context) (age time.Duration, ok bool, err error) {
	in, err := s.Restore(ctx)
	if err != nil || in == nil {
		return 0, false, err
	}
	return s.now().Sub(in.Timestamp), true, nil
}

func (s *Store) load(ctx context.Context) (*record, error) {
	body, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load intent: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var rec record
	reason := ""
	switch err := json.Unmarshal(body, &rec); {
	case err != nil:
		reason = "malformed"
	case !rec.Complete():
		reason = "incomplete"
	case s.now().Sub(rec.Timestamp) > s.window:
		reason = "stale"
	}
	if reason == "" {
		return &rec, nil
	}

	log.Printf("intent: discarding %s record key=%s", reason, s.key)
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return nil, fmt.Errorf("discard %s intent: %w", reason, err)
	}
	return nil, nil
}
