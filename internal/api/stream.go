package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// handleStream is the live viewer connection: a server-sent-event stream of
// mutation events. There is no acknowledgment and no replay; events published
// before the subscription existed are gone. An optional kind parameter limits
// the feed to one entity family.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var kindFilter model.EntityKind
	if k := r.URL.Query().Get("kind"); k != "" {
		kindFilter = model.EntityKind(k)
		if !kindFilter.Valid() {
			respondError(w, http.StatusBadRequest, "unknown kind")
			return
		}
	}

	sub := s.bus.Subscribe(s.cfg.EventBufferSize)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, open := <-sub.C:
			if !open {
				return
			}
			if kindFilter != "" && event.Kind != kindFilter {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				zap.L().Error("api: marshal stream event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: mutation\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
