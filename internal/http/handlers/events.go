package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mealplan/internal/domain"
	"mealplan/internal/sse"
)

const defaultKeepAlive = 15 * time.Second

type overflowNotice struct {
	BatchID string `json:"batchId"`
	Message string `json:"message"`
}

// BatchEvents streams a batch's progress events from the moment of
// subscription. The stream ends after the terminal event.
func (a *App) BatchEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := a.Batches.Subscribe(id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer a.Batches.Unsubscribe(sub)

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sw := sse.NewWriter(w)
	sw.Init()

	keepAlive := a.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sw.WriteComment("keepalive"); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				if errors.Is(sub.Err(), domain.ErrSubscriberOverflow) {
					_ = sw.WriteEvent("", "overflow", overflowNotice{
						BatchID: id,
						Message: "subscriber fell behind; reconnect and fetch the batch snapshot",
					})
					a.Logger.Warn().Str("batch_id", id).Msg("event stream closed on overflow")
				}
				return
			}
			if err := sw.WriteEvent(strconv.FormatUint(ev.Sequence, 10), string(ev.Status), ev); err != nil {
				a.Logger.Debug().Err(err).Str("batch_id", id).Msg("event stream write failed")
				return
			}
		}
	}
}
