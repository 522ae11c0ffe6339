// Package session keeps in-flight call state in Redis, keyed by caller
// phone. The TTL doubles as abandonment cleanup: a caller who hangs up
// mid-flow leaves nothing behind once the key expires.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stage is the caller's position in the authentication flow.
type Stage string

const (
	StagePinEntry           Stage = "pin_entry"
	StageOTPPending         Stage = "otp_pending"
	StageDestinationPending Stage = "destination_pending"
	StageInCall             Stage = "in_call"
)

// CallSession is the per-caller working state. One live session per
// caller phone at a time.
type CallSession struct {
	Caller      string    `json:"caller"`
	Stage       Stage     `json:"stage"`
	PIN         string    `json:"pin"`
	Attempts    int       `json:"attempts"`
	LegID       string    `json:"leg_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

var ErrExists = errors.New("session: already exists")

// Store reads and writes call sessions with a freshness TTL per write.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func sessionKey(caller string) string {
	return "call:" + caller
}

// Create writes a new session only if none exists for the caller.
// SET NX is the per-caller mutex: a second concurrent inbound call from
// the same number loses and is turned away.
func (s *Store) Create(ctx context.Context, sess CallSession, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, sessionKey(sess.Caller), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Get returns the caller's session, or ok=false when none exists. Redis
// errors also report absent: the flow treats an unreadable session the
// same as an expired one and restarts the caller, which is safer than
// failing the call outright.
func (s *Store) Get(ctx context.Context, caller string) (CallSession, bool) {
	raw, err := s.rdb.Get(ctx, sessionKey(caller)).Bytes()
	if err != nil {
		return CallSession{}, false
	}
	var sess CallSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return CallSession{}, false
	}
	return sess, true
}

// Put overwrites the session and resets its TTL. Each successful step in
// the flow buys the caller a fresh window for the next one.
func (s *Store) Put(ctx context.Context, sess CallSession, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.Caller), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Delete removes the caller's session. Deleting a missing key is fine.
func (s *Store) Delete(ctx context.Context, caller string) error {
	if err := s.rdb.Del(ctx, sessionKey(caller)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
