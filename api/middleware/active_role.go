package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// ActiveRoleHeader lets a user switch between the requester and runner side
// without minting a new token.
const ActiveRoleHeader = "X-Active-Role"

// ActiveRole resolves the role the caller acts as for this request. The
// header wins; otherwise the token's default role is used.
func ActiveRole(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(ActiveRoleHeader))
			if raw == "" {
				raw = tokenRoleFromContext(r.Context())
			}

			role, err := enums.ParseRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid active role").
					WithDetails(map[string]any{"header": ActiveRoleHeader}))
				return
			}

			ctx := WithRole(r.Context(), string(role))
			if logg != nil {
				ctx = logg.WithActorRole(ctx, string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
