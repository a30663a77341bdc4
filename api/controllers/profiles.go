package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/api/validators"
	"github.com/angelmondragon/maiyom-backend/internal/profiles"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

type upsertProfileRequest struct {
	FullName    string  `json:"full_name" validate:"required,min=2,max=120"`
	Phone       *string `json:"phone" validate:"omitempty,max=20"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url"`
	City        *string `json:"city" validate:"omitempty,max=80"`
	DefaultRole string  `json:"default_role"`
}

type kycRequest struct {
	Aadhaar string `json:"aadhaar" validate:"required,aadhaar"`
	PAN     string `json:"pan" validate:"required,pan"`
}

func GetProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		view, err := svc.GetProfile(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func UpsertProfile(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var payload upsertProfileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := profiles.UpsertProfileInput{
			FullName:  validators.SanitizeString(payload.FullName, 120),
			Phone:     payload.Phone,
			AvatarURL: payload.AvatarURL,
			City:      payload.City,
		}
		if raw := strings.TrimSpace(payload.DefaultRole); raw != "" {
			role, err := enums.ParseRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid default_role"))
				return
			}
			input.DefaultRole = role
		}

		view, err := svc.UpsertProfile(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SubmitKYC stores the runner's identity documents for review.
func SubmitKYC(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "profiles")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var payload kycRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SubmitKYC(r.Context(), actor, profiles.KYCInput{
			Aadhaar: payload.Aadhaar,
			PAN:     payload.PAN,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
