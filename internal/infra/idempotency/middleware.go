package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "X-Idempotent-Replay"
)

type Logger interface {
	Printf(format string, args ...any)
}

type config struct {
	ttl      time.Duration
	required bool
	identity func(*http.Request) string
	clock    func() time.Time
	logger   Logger
}

type Option func(*config)

func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRequired rejects requests that carry no key.
func WithRequired() Option {
	return func(c *config) { c.required = true }
}

// WithIdentity scopes keys to the caller returned by fn.
func WithIdentity(fn func(*http.Request) string) Option {
	return func(c *config) {
		if fn != nil {
			c.identity = fn
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// Middleware replays the stored response when a request is retried with the
// same Idempotency-Key, and rejects concurrent or mismatched reuse with 409.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := config{
		ttl:      DefaultTTL,
		identity: func(*http.Request) string { return "anonymous" },
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" {
				if cfg.required {
					respondError(w, http.StatusBadRequest, "missing "+HeaderKey+" header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				respondError(w, http.StatusBadRequest, "unable to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			identity := cfg.identity(r)
			scoped := sha256Hex([]byte(identity + "|" + key))
			fingerprint := sha256Hex([]byte(r.Method + "|" + r.URL.Path + "|" + r.URL.RawQuery + "|" + sha256Hex(body)))

			state, rec, err := store.Reserve(r.Context(), scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				respondError(w, http.StatusConflict, "idempotency key already used for a different request")
				return
			case err != nil:
				cfg.logf("idempotency: reserve failed: %v", err)
				respondError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			switch state {
			case StateCompleted:
				replay(w, rec)
				return
			case StatePending:
				respondError(w, http.StatusConflict, "a request with this idempotency key is in progress")
				return
			}

			rw := &recorder{header: make(http.Header)}
			finished := false
			defer func() {
				// A panicking handler must not leave the key pending.
				if finished {
					return
				}
				if err := store.Release(context.WithoutCancel(r.Context()), scoped); err != nil {
					cfg.logf("idempotency: release after panic failed: %v", err)
				}
			}()
			next.ServeHTTP(rw, r)
			finished = true

			// Server errors are not cached so the client can retry them.
			if rw.status() >= http.StatusInternalServerError {
				if err := store.Release(r.Context(), scoped); err != nil {
					cfg.logf("idempotency: release failed: %v", err)
				}
			} else if err := store.SaveResponse(r.Context(), scoped, fingerprint, Response{
				Status:  rw.status(),
				Headers: rw.header,
				Body:    rw.body.Bytes(),
			}, cfg.clock().UTC(), cfg.ttl); err != nil {
				cfg.logf("idempotency: save failed: %v", err)
				// A mismatch means the key now belongs to another request.
				if !errors.Is(err, ErrFingerprintMismatch) {
					_ = store.Release(r.Context(), scoped)
				}
			}
			rw.flushTo(w)
		})
	}
}

func (c config) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func replay(w http.ResponseWriter, rec Record) {
	for name, values := range rec.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(HeaderReplay, "true")
	status := rec.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(rec.Body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type recorder struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

func (r *recorder) flushTo(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.status())
	_, _ = w.Write(r.body.Bytes())
}
