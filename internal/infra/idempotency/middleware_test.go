package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCountingHandler(status int, calls *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	})
}

func post(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplaysCompletedResponse(t *testing.T) {
	var calls int32
	h := Middleware(NewMemoryStore())(newCountingHandler(http.StatusCreated, &calls))

	first := post(h, "k1", `{"a":1}`)
	second := post(h, "k1", `{"a":1}`)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get(HeaderReplay))
	require.Equal(t, "application/json", second.Header().Get("Content-Type"))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMiddleware_DifferentBodySameKeyConflicts(t *testing.T) {
	var calls int32
	h := Middleware(NewMemoryStore())(newCountingHandler(http.StatusCreated, &calls))

	post(h, "k1", `{"a":1}`)
	rec := post(h, "k1", `{"a":2}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMiddleware_NoKeyPassesThrough(t *testing.T) {
	var calls int32
	h := Middleware(NewMemoryStore())(newCountingHandler(http.StatusCreated, &calls))

	post(h, "", `{}`)
	post(h, "", `{}`)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	strict := Middleware(NewMemoryStore(), WithRequired())(newCountingHandler(http.StatusCreated, &calls))
	require.Equal(t, http.StatusBadRequest, post(strict, "", `{}`).Code)
}

func TestMiddleware_ServerErrorsAreNotCached(t *testing.T) {
	var calls int32
	h := Middleware(NewMemoryStore())(newCountingHandler(http.StatusInternalServerError, &calls))

	post(h, "k1", `{}`)
	post(h, "k1", `{}`)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddleware_PanicReleasesKey(t *testing.T) {
	var calls int32
	flaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})
	recoverer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recover() != nil {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
	h := recoverer(Middleware(NewMemoryStore())(flaky))

	require.Equal(t, http.StatusInternalServerError, post(h, "k1", `{}`).Code)
	require.Equal(t, http.StatusCreated, post(h, "k1", `{}`).Code)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddleware_ScopesKeysByIdentity(t *testing.T) {
	var calls int32
	who := "alice"
	h := Middleware(NewMemoryStore(), WithIdentity(func(*http.Request) string { return who }))(newCountingHandler(http.StatusCreated, &calls))

	post(h, "k1", `{}`)
	who = "bob"
	rec := post(h, "k1", `{}`)

	require.Empty(t, rec.Header().Get(HeaderReplay))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMemoryStore_PendingAndExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1000, 0)

	state, _, err := store.Reserve(context.Background(), "k", "fp", now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, StateNew, state)

	state, _, err = store.Reserve(context.Background(), "k", "fp", now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	require.Equal(t, StatePending, state)

	state, _, err = store.Reserve(context.Background(), "k", "fp", now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.Equal(t, StateNew, state)

	require.Equal(t, 1, store.Sweep(now.Add(10*time.Minute)))
}
