package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/api/validators"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/types"
	"github.com/google/uuid"
)

type createMissionRequest struct {
	Title           string                `json:"title" validate:"required,max=120"`
	Description     string                `json:"description" validate:"max=2000"`
	Category        string                `json:"category" validate:"required,max=64"`
	Scenario        string                `json:"scenario" validate:"required"`
	BudgetMin       decimal.Decimal       `json:"budget_min"`
	BudgetMax       decimal.Decimal       `json:"budget_max" validate:"gt=0"`
	PickupLocation  string                `json:"pickup_location" validate:"required,max=500"`
	DropoffLocation string                `json:"dropoff_location" validate:"required,max=500"`
	PickupCoords    *missions.Coordinates `json:"pickup_coords"`
	DropoffCoords   *missions.Coordinates `json:"dropoff_coords"`
	Stops           []types.Stop          `json:"stops" validate:"max=3"`
	VehicleType     string                `json:"vehicle_type"`
	PackageSize     string                `json:"package_size"`
	ScheduledFor    *time.Time            `json:"scheduled_for"`
	IsBoosted       bool                  `json:"is_boosted"`
	SaveAsTemplate  bool                  `json:"save_as_template"`
}

func (r createMissionRequest) toInput() (missions.CreateMissionInput, error) {
	scenario, err := enums.ParseScenario(r.Scenario)
	if err != nil {
		return missions.CreateMissionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scenario")
	}
	input := missions.CreateMissionInput{
		Title:           r.Title,
		Description:     r.Description,
		Category:        r.Category,
		Scenario:        scenario,
		BudgetMin:       r.BudgetMin,
		BudgetMax:       r.BudgetMax,
		PickupLocation:  r.PickupLocation,
		DropoffLocation: r.DropoffLocation,
		Stops:           r.Stops,
		ScheduledFor:    r.ScheduledFor,
		IsBoosted:       r.IsBoosted,
		SaveAsTemplate:  r.SaveAsTemplate,
	}
	if r.PickupCoords != nil {
		input.PickupLat, input.PickupLng = &r.PickupCoords.Lat, &r.PickupCoords.Lng
	}
	if r.DropoffCoords != nil {
		input.DropoffLat, input.DropoffLng = &r.DropoffCoords.Lat, &r.DropoffCoords.Lng
	}
	if raw := strings.TrimSpace(r.VehicleType); raw != "" {
		vehicle, err := enums.ParseVehicleType(raw)
		if err != nil {
			return missions.CreateMissionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle_type")
		}
		input.VehicleType = vehicle
	}
	if raw := strings.TrimSpace(r.PackageSize); raw != "" {
		size, err := enums.ParsePackageSize(raw)
		if err != nil {
			return missions.CreateMissionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid package_size")
		}
		input.PackageSize = size
	}
	return input, nil
}

type fromTemplateRequest struct {
	TemplateID   string     `json:"template_id" validate:"required,uuid"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

type otpRequest struct {
	OTP      string  `json:"otp" validate:"required,len=4,numeric"`
	PhotoURL *string `json:"photo_url" validate:"omitempty,url"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type addCostRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"required,max=200"`
}

// CreateMission posts a new mission, or saves a template, for the requester.
func CreateMission(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var payload createMissionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.CreateMission(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// CreateMissionFromTemplate reposts a saved template.
func CreateMissionFromTemplate(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var payload fromTemplateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.CreateFromTemplate(r.Context(), actor, missions.CreateFromTemplateInput{
			TemplateID:   uuid.MustParse(payload.TemplateID),
			ScheduledFor: payload.ScheduledFor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func GetMission(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		view, err := svc.GetMission(r.Context(), actor, missionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ListOpenMissions is the runner feed. Boosted missions lead the first page.
func ListOpenMissions(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		filters := missions.FeedFilters{
			Category:         strings.TrimSpace(r.URL.Query().Get("category")),
			ExcludeRequester: actor.UserID,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("scenario")); raw != "" {
			scenario, err := enums.ParseScenario(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scenario"))
				return
			}
			filters.Scenario = &scenario
		}

		list, err := svc.ListOpenMissions(r.Context(), actor, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ListMyMissions(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return listMissions(svc, logg, missions.Service.ListRequesterMissions)
}

func ListMissionTemplates(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return listMissions(svc, logg, missions.Service.ListTemplates)
}

func ListRunnerMissions(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return listMissions(svc, logg, missions.Service.ListRunnerMissions)
}

type missionLister func(missions.Service, context.Context, auth.Actor, pagination.Params) (*missions.MissionList, error)

func listMissions(svc missions.Service, logg *logger.Logger, list missionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		resp, err := list(svc, r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

func BoostMission(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return missionAction(svc, logg, missions.Service.BoostMission)
}

// ConfirmReceipt closes a delivered mission and releases escrow to the runner.
func ConfirmReceipt(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return missionAction(svc, logg, missions.Service.ConfirmReceipt)
}

type missionActionFn func(missions.Service, context.Context, auth.Actor, uuid.UUID) (*missions.MissionView, error)

func missionAction(svc missions.Service, logg *logger.Logger, action missionActionFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		view, err := action(svc, r.Context(), actor, missionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ConfirmPickup checks the requester's pickup code entered by the runner.
func ConfirmPickup(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return confirmStep(svc, logg, missions.Service.ConfirmPickup)
}

// ConfirmDelivery checks the delivery code entered by the runner.
func ConfirmDelivery(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return confirmStep(svc, logg, missions.Service.ConfirmDelivery)
}

type confirmStepFn func(missions.Service, context.Context, auth.Actor, missions.ConfirmStepInput) (*missions.MissionView, error)

func confirmStep(svc missions.Service, logg *logger.Logger, step confirmStepFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		var payload otpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := step(svc, r.Context(), actor, missions.ConfirmStepInput{
			MissionID: missionID,
			OTP:       payload.OTP,
			PhotoURL:  payload.PhotoURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func RaiseDispute(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		var payload disputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.RaiseDispute(r.Context(), actor, missions.RaiseDisputeInput{
			MissionID: missionID,
			Reason:    validators.SanitizeString(payload.Reason, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func AddAdditionalCost(svc missions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "missions")
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

		var payload addCostRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AddAdditionalCost(r.Context(), actor, missions.AddCostInput{
			MissionID:   missionID,
			Amount:      payload.Amount,
			Description: validators.SanitizeString(payload.Description, 200),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}
