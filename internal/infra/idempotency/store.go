package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

const DefaultTTL = 24 * time.Hour

type State int

const (
	// StateNew means the caller owns the key and should run the request.
	StateNew State = iota
	// StatePending means another request holds the key.
	StatePending
	// StateCompleted means a stored response can be replayed.
	StateCompleted
)

// Record is what a store keeps per key.
type Record struct {
	Fingerprint string              `json:"fingerprint"`
	Completed   bool                `json:"completed"`
	Status      int                 `json:"status,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Body        []byte              `json:"body,omitempty"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists key reservations and the responses produced for them.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

func stateOf(rec Record, fingerprint string) (State, error) {
	if rec.Fingerprint != fingerprint {
		return 0, ErrFingerprintMismatch
	}
	if rec.Completed {
		return StateCompleted, nil
	}
	return StatePending, nil
}

func completedRecord(fingerprint string, resp Response, expires time.Time) Record {
	rec := Record{
		Fingerprint: fingerprint,
		Completed:   true,
		Status:      resp.Status,
		Headers:     storableHeaders(resp.Headers),
		ExpiresAt:   expires,
	}
	if len(resp.Body) > 0 {
		rec.Body = append([]byte(nil), resp.Body...)
	}
	return rec
}

func storableHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
