package api

import (
	"net/http"
	"time"

	"github.com/bobarin/directorscut/internal/store"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// Origin is enforced by the CORS policy and API key
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProjectEvents handles GET /v1/projects/{id}/events. The stream starts with
// a scenes_replaced snapshot and then carries every store event for the
// project. Slow clients drop events rather than stall renders.
func (h *Handler) ProjectEvents(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	snap, err := h.pipeline.View(r.Context(), projectID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	events := make(chan store.Event, eventBuffer)
	unsubscribe := h.pipeline.Store.Subscribe(projectID, func(e store.Event) {
		select {
		case events <- e:
		default:
			log.Warn().Str("project_id", projectID.String()).Str("type", string(e.Type)).Msg("event dropped for slow client")
		}
	})
	defer unsubscribe()

	logger := log.With().Str("project_id", projectID.String()).Logger()
	logger.Debug().Msg("events client connected")

	// Reader: only pongs and close frames are expected
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	if err := write(store.Event{
		Type:      store.EventScenesReplaced,
		ProjectID: projectID,
		Scenes:    snap.Scenes,
		Project:   &snap.Project,
		At:        time.Now(),
	}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logger.Debug().Msg("events client disconnected")
			return
		case e := <-events:
			if err := write(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
