package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/api/validators"
	"github.com/angelmondragon/maiyom-backend/internal/conversations"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

type sendMessageRequest struct {
	Channel   string  `json:"channel" validate:"required"`
	MissionID *string `json:"mission_id" validate:"omitempty,uuid"`
	Body      string  `json:"body" validate:"max=2000"`
	PhotoURL  *string `json:"photo_url" validate:"omitempty,url"`
}

func (r sendMessageRequest) toInput() (conversations.SendMessageInput, error) {
	channel, err := enums.ParseMessageChannel(r.Channel)
	if err != nil {
		return conversations.SendMessageInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel")
	}
	input := conversations.SendMessageInput{
		Channel:  channel,
		Body:     r.Body,
		PhotoURL: r.PhotoURL,
	}
	if r.MissionID != nil {
		id := uuid.MustParse(*r.MissionID)
		input.MissionID = &id
	}
	return input, nil
}

// threadFromQuery reads the channel and optional mission id that identify a
// thread.
func threadFromQuery(r *http.Request) (enums.MessageChannel, *uuid.UUID, error) {
	channel, err := enums.ParseMessageChannel(r.URL.Query().Get("channel"))
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel").
			WithDetails(map[string]any{"field": "channel"})
	}
	raw := strings.TrimSpace(r.URL.Query().Get("mission_id"))
	if raw == "" {
		return channel, nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mission_id").
			WithDetails(map[string]any{"field": "mission_id"})
	}
	return channel, &id, nil
}

// ListConversations returns the caller's inbox: one entry per mission chat
// plus the support and group threads.
func ListConversations(svc conversations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "conversations")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		items, err := svc.ListConversations(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"conversations": items})
	}
}

func ListMessages(svc conversations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "conversations")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		channel, missionID, err := threadFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, ok := pageParams(w, r, logg)
		if !ok {
			return
		}

		list, err := svc.ListMessages(r.Context(), actor, channel, missionID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func SendMessage(svc conversations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "conversations")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var payload sendMessageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SendMessage(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// StreamMessages pushes new messages of one thread as they are inserted.
func StreamMessages(svc conversations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "conversations")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		channel, missionID, err := threadFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Subscribe(r.Context(), actor, channel, missionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		streamEvents(w, r, logg, "message", sub)
	}
}
