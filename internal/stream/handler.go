package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeffypooo/lanmon/internal/auth"
)

// Handler accepts subscription requests and runs one Session per viewer.
type Handler struct {
	auth     *auth.Authenticator
	sampler  Sampler
	interval time.Duration
	registry *Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// observe, when set, sees every session right after it is created.
	observe func(*Session)
}

func NewHandler(a *auth.Authenticator, sampler Sampler, interval time.Duration, registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:     a,
		sampler:  sampler,
		interval: interval,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			// The dashboard may be served from another host on the LAN;
			// access is gated by the token, not by origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Connecting: the token travels as a query parameter because browsers
	// cannot attach headers to a WebSocket handshake.
	token := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sess := newSession(context.Background(), uuid.NewString(), conn, h.interval, h.logger)
	if h.observe != nil {
		h.observe(sess)
	}
	if !sess.authenticate(h.auth, token) {
		// Never registered: the viewer only ever sees the close frame.
		sess.logger.Warn("subscription rejected: invalid token",
			zap.String("remote", r.RemoteAddr),
			zap.Stringer("state", sess.State()))
		return
	}

	if !h.registry.add(sess) {
		sess.Shutdown()
		sess.logger.Info("subscription refused: agent shutting down", zap.String("remote", r.RemoteAddr))
		return
	}
	defer h.registry.remove(sess)

	sess.logger.Info("viewer subscribed",
		zap.String("remote", r.RemoteAddr),
		zap.Duration("interval", h.interval))
	sess.Run(h.sampler)
	sess.logger.Debug("session finished",
		zap.Stringer("state", sess.State()),
		zap.Int64("sent", sess.Sent()))
}
