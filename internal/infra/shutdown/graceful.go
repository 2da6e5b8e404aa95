// Package shutdown ties process lifetime to termination signals.
package shutdown

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// WithSignals returns a context cancelled on SIGINT or SIGTERM.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Server stops srv once ctx is done, waiting up to timeout for in-flight
// requests.
func Server(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
