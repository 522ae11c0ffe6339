// Package otp issues and verifies single-use one-time codes delivered
// out of band. Codes live in Redis under a TTL; verification consumes
// the code atomically whatever the outcome.
package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"prepaid-gateway/pkg/utils"
)

// ErrRateLimited means the caller asked for too many codes in the
// current window.
var ErrRateLimited = errors.New("otp: issue rate exceeded")

// Outcome classifies a verification attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeExpired
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// record is the stored shape. ExpiresAt is the logical deadline; the
// Redis TTL is set slightly longer so a code that aged out in flight is
// reported as expired rather than not found.
type record struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

const expiryGrace = time.Minute

type Config struct {
	// CodeTTL is how long an issued code stays valid.
	CodeTTL time.Duration
	// IssueLimit caps issues per caller per IssueWindow.
	IssueLimit  int
	IssueWindow time.Duration
}

// Service issues and verifies codes for callers.
type Service struct {
	rdb *redis.Client
	cfg Config

	clock func() time.Time
}

func NewService(rdb *redis.Client, cfg Config) *Service {
	return &Service{rdb: rdb, cfg: cfg, clock: time.Now}
}

func codeKey(caller string) string {
	return "otp:" + caller
}

func issueCapKey(caller string) string {
	return "otp-issues:" + caller
}

// Issue generates a fresh 6-digit code for the caller, replacing any
// code still pending. The windowed cap stops a caller from farming
// unlimited emails by redialing.
func (s *Service) Issue(ctx context.Context, caller string) (string, error) {
	allowed, err := utils.AllowWindowedCap(ctx, s.rdb, issueCapKey(caller), s.cfg.IssueLimit, s.cfg.IssueWindow)
	if err != nil {
		return "", fmt.Errorf("otp issue cap: %w", err)
	}
	if !allowed {
		return "", ErrRateLimited
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	now := s.clock().UTC()
	raw, err := json.Marshal(record{Code: code, ExpiresAt: now.Add(s.cfg.CodeTTL)})
	if err != nil {
		return "", fmt.Errorf("marshal otp: %w", err)
	}
	if err := s.rdb.Set(ctx, codeKey(caller), raw, s.cfg.CodeTTL+expiryGrace).Err(); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify consumes the caller's pending code and compares it against the
// entered digits. GETDEL makes consumption atomic: two concurrent
// attempts cannot both succeed, and a failed attempt burns the code.
func (s *Service) Verify(ctx context.Context, caller, entered string) (Outcome, error) {
	raw, err := s.rdb.GetDel(ctx, codeKey(caller)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("consume otp: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return OutcomeNotFound, fmt.Errorf("decode otp: %w", err)
	}
	if s.clock().UTC().After(rec.ExpiresAt) {
		return OutcomeExpired, nil
	}
	if rec.Code != entered {
		return OutcomeMismatch, nil
	}
	return OutcomeOK, nil
}

// generateCode returns six uniformly random digits with no leading-zero
// bias concerns (leading zeros are allowed and kept as a string).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
