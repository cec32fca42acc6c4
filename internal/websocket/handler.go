package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"cementqa/internal/config"
	apperrors "cementqa/internal/errors"
	"cementqa/internal/infrastructure"
)

// Handler upgrades /ws requests and attaches the connection to the hub
type Handler struct {
	hub            *Hub
	upgrader       websocket.Upgrader
	allowedOrigins []string
	errorHandler   *apperrors.ErrorHandler
	logger         *slog.Logger

	// SessionExists rejects subscriptions to unknown sessions when set
	SessionExists func(id string) error
}

// NewHandler creates the upgrade handler
func NewHandler(hub *Hub, cfg config.WebSocketConfig, allowedOrigins []string, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *Handler {
	h := &Handler{
		hub:            hub,
		allowedOrigins: allowedOrigins,
		errorHandler:   errorHandler,
		logger:         infrastructure.WithComponent(logger, "websocket.handler"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.WarnContext(r.Context(), "websocket upgrade failed",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			apperrors.WriteProblem(w, apperrors.NewProblemDetails(
				status,
				apperrors.TypeWebSocketUpgrade,
				"WebSocket Upgrade Failed",
				reason.Error(),
				r.URL.Path,
			))
		},
	}
	return h
}

// checkOrigin allows same-origin requests, requests without an Origin
// header and the configured origins ("*" allows all).
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host) {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	sessionID := r.URL.Query().Get("session")

	if sessionID != "" && h.SessionExists != nil {
		if err := h.SessionExists(sessionID); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the response
		return
	}

	client := NewClient(h.hub, conn, sessionID, infrastructure.GetTraceID(ctx), h.logger)
	if err := h.hub.Register(client); err != nil {
		h.logger.WarnContext(ctx, "hub closed, dropping websocket client", slog.String("client_id", client.id))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
