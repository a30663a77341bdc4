package router

import (
	"context"

	"github.com/angelmondragon/maiyom-backend/internal/analytics/types"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

type rowBuilder func(envelope types.Envelope, payload any) (types.MissionEventRow, error)

// rowHandler turns one event into one mission_events row.
type rowHandler struct {
	writer Writer
	logg   *logger.Logger
	build  rowBuilder
}

func (h *rowHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	row, err := h.build(envelope, payload)
	if err != nil {
		h.logg.Error(logCtx, "failed to build mission event row", err)
		return err
	}
	row.Payload = types.JSONColumn(envelope.Payload)

	if err := h.writer.InsertMissionEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert mission event row", err)
		return err
	}

	h.logg.Info(logCtx, "mission event row inserted")
	return nil
}
