package notify

import (
	"net/http"

	httputil "clinicflow/pkg/http"
	"clinicflow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Displays are served from the clinic network; origin is not enforced.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes the hub over WebSocket plus a stats endpoint.
type Handler struct {
	hub   *Hub
	stats StatsProvider
	log   *logger.Logger
}

// NewHandler serves connections on hub. stats reports on the configured
// backend, which is the hub itself unless a relay sits in front of it.
func NewHandler(hub *Hub, stats StatsProvider, log *logger.Logger) *Handler {
	if stats == nil {
		stats = hub
	}
	return &Handler{hub: hub, stats: stats, log: log}
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	go h.hub.Serve(ws)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, h.stats.Stats()); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Stats", "operation", "WriteSuccess", "error", err)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/ws", h.Connect)
	router.GET("/api/v1/realtime/stats", h.Stats)
}
