package controllers

import (
	"net/http"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/internal/missions"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

// ListMyTransactions pages through the ledger rows where the caller pays or
// gets paid.
func ListMyTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "ledger")
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

		list, err := svc.ListForUser(r.Context(), actor.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetMissionLedger returns a mission's money movements and totals to its
// requester and accepted runner.
func GetMissionLedger(missionSvc missions.Service, svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || missionSvc == nil {
			unavailable(w, r, logg, "ledger")
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

		mission, err := missionSvc.GetMission(r.Context(), actor, missionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isRunner := mission.RunnerID != nil && *mission.RunnerID == actor.UserID
		if mission.RequesterID != actor.UserID && !isRunner {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "ledger is visible to mission participants only"))
			return
		}

		txns, err := svc.ListForMission(r.Context(), missionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": txns,
			"totals":       ledger.Summarize(missionID, txns),
		})
	}
}
