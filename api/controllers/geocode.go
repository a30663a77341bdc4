package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/internal/geocode"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

const minSuggestQuery = 3

// SuggestAddresses backs the address autocomplete on the mission form.
func SuggestAddresses(svc geocode.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "geocode")
			return
		}
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if len([]rune(query)) < minSuggestQuery {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "q must be at least 3 characters").
				WithDetails(map[string]any{"field": "q"}))
			return
		}

		suggestions, err := svc.Suggest(r.Context(), geocode.SuggestRequest{
			Query:    query,
			Language: strings.TrimSpace(r.URL.Query().Get("lang")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"suggestions": suggestions})
	}
}

// GeocodeAddress resolves one address. A miss returns a null point.
func GeocodeAddress(svc geocode.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "geocode")
			return
		}
		address := strings.TrimSpace(r.URL.Query().Get("address"))
		if address == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "address is required").
				WithDetails(map[string]any{"field": "address"}))
			return
		}

		point, err := svc.Geocode(r.Context(), address)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"point": point})
	}
}
