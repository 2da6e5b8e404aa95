package http

import (
	"context"
	"net/http"
	"strings"

	domuser "example.com/shopcore/internal/domain/user"
)

type ctxKey struct{}

var ctxActorKey = ctxKey{}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, domuser.ErrUnauthorized)
			return
		}

		actor, err := a.authSvc.Authenticate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			respondError(w, http.StatusUnauthorized, domuser.ErrUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := getActor(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, domuser.ErrUnauthorized)
			return
		}
		if !actor.IsAdmin() {
			respondError(w, http.StatusForbidden, domuser.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getActor(ctx context.Context) (domuser.Actor, bool) {
	actor, ok := ctx.Value(ctxActorKey).(domuser.Actor)
	return actor, ok
}
