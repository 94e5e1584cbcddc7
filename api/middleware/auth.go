package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/settlement-engine/api/responses"
	pkgAuth "github.com/angelmondragon/settlement-engine/pkg/auth"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const bearerPrefix = "bearer "

// TokenVerifier turns a raw bearer token into verified claims.
type TokenVerifier interface {
	Verify(raw string) (*pkgAuth.Claims, error)
}

// Auth requires a valid access token and attaches the caller as a Principal.
func Auth(tokens TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				if logg != nil {
					logg.Security(r.Context(), "token_rejected", map[string]any{"path": r.URL.Path})
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			principal := Principal{UserID: claims.UserID.String(), Role: string(claims.Role)}
			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, principal.UserID), principal.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts both "Bearer <token>" and a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) >= len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		raw = strings.TrimSpace(raw[len(bearerPrefix):])
	}
	return raw, raw != ""
}
