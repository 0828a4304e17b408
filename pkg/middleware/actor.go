package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/permissions"
)

type actorContextKey struct{}

// HeaderUserID and HeaderRole carry the authenticated identity. The
// platform sits behind a gateway that authenticates users and injects
// these headers; authentication itself is out of scope here.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-Role"
)

// ActorFromContext returns the actor extracted by RequireActor
func ActorFromContext(ctx context.Context) (permissions.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(permissions.Actor)
	return actor, ok
}

// WithActor stores an actor in the context. Used by tests and internal
// callers.
func WithActor(ctx context.Context, actor permissions.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// RequireActor rejects requests without identity headers and puts the
// actor into the request context for handlers
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		role := strings.TrimSpace(r.Header.Get(HeaderRole))
		if userID == "" || role == "" {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing identity headers")
			return
		}

		actor := permissions.Actor{UserID: userID, Role: role}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
