package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/realtime"
)

var streamHeartbeat = 25 * time.Second

// streamEvents relays a realtime subscription as Server-Sent Events until the
// client goes away or the subscription ends. It owns sub and closes it.
func streamEvents(w http.ResponseWriter, r *http.Request, logg *logger.Logger, event string, sub *realtime.Subscription) {
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: ready\ndata: {\"topic\":%q}\n\n", sub.Topic())
	flusher.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.C():
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, ev.Payload); err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "topic", sub.Topic()), "stream.client_gone")
				}
				return
			}
			flusher.Flush()
		}
	}
}
