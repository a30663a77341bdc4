package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	pkgAuth "github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/auth/session"
	"github.com/angelmondragon/maiyom-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// streamTokenParam carries the token for EventSource clients, which cannot
// set headers. It is honored only on GET .../stream.
const streamTokenParam = "access_token"

// Auth verifies the access token, checks its session when a checker is
// configured and stores the caller on the context. The token's role is the
// acting role until ActiveRole says otherwise.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			raw := accessToken(r)
			if raw == "" {
				fail(pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, raw)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if sessions != nil {
				live, err := sessions.HasSession(ctx, claims.ID)
				switch {
				case err != nil:
					fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				case !live:
					fail(pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			ctx = withClaims(ctx, claims)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	ctx = WithUserID(ctx, claims.UserID.String())
	ctx = context.WithValue(ctx, ctxTokenRole, string(claims.Role))
	return WithRole(ctx, string(claims.Role))
}

func accessToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/stream") {
			return strings.TrimSpace(r.URL.Query().Get(streamTokenParam))
		}
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
