package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/api/validators"
	"github.com/angelmondragon/maiyom-backend/internal/offers"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

type submitOfferRequest struct {
	Price    decimal.Decimal `json:"price" validate:"gt=0"`
	Note     string          `json:"note" validate:"max=500"`
	PhotoURL *string         `json:"photo_url" validate:"omitempty,url"`
}

type counterOfferRequest struct {
	CounterPrice decimal.Decimal `json:"counter_price" validate:"gt=0"`
}

// SubmitOffer places the runner's bid on an open mission.
func SubmitOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		missionID, ok := uuidParam(w, r, logg, "missionId")
		if !ok {
			return
		}

		var payload submitOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SubmitOffer(r.Context(), actor, offers.SubmitOfferInput{
			MissionID: missionID,
			Price:     payload.Price,
			Note:      validators.SanitizeString(payload.Note, 500),
			PhotoURL:  payload.PhotoURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// CounterOffer lets the requester propose a different price on a pending bid.
func CounterOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		offerID, ok := uuidParam(w, r, logg, "offerId")
		if !ok {
			return
		}

		var payload counterOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.CounterOffer(r.Context(), actor, offers.CounterOfferInput{
			OfferID:      offerID,
			CounterPrice: payload.CounterPrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// RejectOffer declines a bid. The requester rejects, the runner withdraws or
// declines a counter.
func RejectOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerAction(svc, logg, offers.Service.RejectOffer)
}

func AcceptOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerAction(svc, logg, offers.Service.AcceptOffer)
}

func AcceptCounter(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerAction(svc, logg, offers.Service.AcceptCounter)
}

type offerActionFn func(offers.Service, context.Context, auth.Actor, uuid.UUID) (*offers.OfferView, error)

func offerAction(svc offers.Service, logg *logger.Logger, action offerActionFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		offerID, ok := uuidParam(w, r, logg, "offerId")
		if !ok {
			return
		}

		view, err := action(svc, r.Context(), actor, offerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListMissionOffers shows every bid to the requester and only their own to a
// runner.
func ListMissionOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		missionID, ok := uuidParam(w, r, logg, "missionId")
		if !ok {
			return
		}
		params, ok := pageParams(w, r, logg)
		if !ok {
			return
		}

		list, err := svc.ListMissionOffers(r.Context(), actor, missionID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ListMyOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "offers")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		params, ok := pageParams(w, r, logg)
		if !ok {
			return
		}

		var status *enums.OfferStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOfferStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}

		list, err := svc.ListRunnerOffers(r.Context(), actor, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
