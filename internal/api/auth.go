package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinware/clinic-backoffice/internal/actor"
)

// ActorMiddleware attaches the authenticated actor to the request context.
// With a signing secret configured it expects an HS256 bearer token carrying
// sub/name/role claims; a malformed or badly signed token is rejected. With
// no secret (dev mode) the actor comes from X-Actor-ID / X-Actor-Role
// headers. A request without credentials passes through anonymous; mutating
// services reject it with their own no-actor precondition.
func ActorMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if jwtSecret == "" {
				if raw := r.Header.Get("X-Actor-ID"); raw != "" {
					id, err := uuid.Parse(raw)
					if err != nil {
						writeError(w, http.StatusUnauthorized, "invalid_actor", "X-Actor-ID must be a valid UUID")
						return
					}
					ctx := actor.WithActor(r.Context(), actor.Actor{
						UserID: id,
						Role:   r.Header.Get("X-Actor-Role"),
					})
					r = r.WithContext(ctx)
				}
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimPrefix(header, "Bearer ")
			if raw == header {
				writeError(w, http.StatusUnauthorized, "invalid_authorization", "expected a bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token could not be verified")
				return
			}

			sub, _ := claims.GetSubject()
			id, err := uuid.Parse(sub)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "sub claim must be a UUID")
				return
			}

			name, _ := claims["name"].(string)
			role, _ := claims["role"].(string)

			ctx := actor.WithActor(r.Context(), actor.Actor{
				UserID: id,
				Name:   name,
				Role:   role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
