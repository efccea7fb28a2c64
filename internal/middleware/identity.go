package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"autoleads/internal/service"
)

// Identity headers set by the upstream identity provider
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderOrganizationID = "X-Organization-ID"
)

type actorKey struct{}

// WithActor returns a copy of ctx carrying the actor
func WithActor(ctx context.Context, actor service.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by Identity
func ActorFrom(ctx context.Context) (service.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(service.Actor)
	return actor, ok
}

// Identity resolves the calling user from the identity headers. Requests
// without a valid user id and organization are rejected with 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+HeaderUserID)
			return
		}

		orgID, err := strconv.Atoi(r.Header.Get(HeaderOrganizationID))
		if err != nil || orgID <= 0 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+HeaderOrganizationID)
			return
		}

		actor := service.Actor{
			UserID:         userID,
			Role:           r.Header.Get(HeaderUserRole),
			OrganizationID: orgID,
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
