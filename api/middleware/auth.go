package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/kiggyshop-backend/api/responses"
	pkgAuth "github.com/angelmondragon/kiggyshop-backend/pkg/auth"
	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

// AdminAuth validates the bearer token on admin routes and seeds the request
// context with the operator subject.
func AdminAuth(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				code := pkgerrors.CodeUnauthorized
				if errors.Is(err, pkgAuth.ErrNotAdmin) {
					code = pkgerrors.CodeForbidden
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(code, err, "invalid token"))
				return
			}

			ctx := WithActor(r.Context(), claims.Subject, claims.Role)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"actor":      claims.Subject,
					"actor_role": claims.Role,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
