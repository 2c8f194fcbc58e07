package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/middleware/cors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

// Websocket message types.
const (
	liveMessageSnapshot = "snapshot"
	liveMessageError    = "error"
	liveMessageReauth   = "reauth"
	liveMessageReauthed = "reauthenticated"
)

const liveReadLimit = 8 << 10

type liveService interface {
	Open(ctx context.Context, actor service.Actor, names []live.ViewName) (*service.LiveSession, error)
	Reauthenticate(ctx context.Context, ls *service.LiveSession, token string) error
}

// LiveHandlerConfig tunes the websocket connection.
type LiveHandlerConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// LiveHandler streams live views over a websocket.
type LiveHandler struct {
	service  liveService
	cfg      LiveHandlerConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

type liveServerMessage struct {
	Type  string           `json:"type"`
	View  live.ViewName    `json:"view,omitempty"`
	Data  interface{}      `json:"data,omitempty"`
	Error *appErrors.Error `json:"error,omitempty"`
}

type liveClientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// NewLiveHandler constructs the handler.
func NewLiveHandler(svc liveService, cfg LiveHandlerConfig, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	h := &LiveHandler{service: svc, cfg: cfg, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     cors.NewPolicy(cfg.AllowedOrigins).CheckOrigin,
	}
	return h
}

// Stream godoc
// @Summary Live view stream
// @Description Upgrades to a websocket pushing a snapshot of each requested view whenever it changes.
// @Description The view parameter is home, transactions, reports, a comma separated list, or all.
// @Description Send {"type":"reauth","token":"..."} to switch identity without reconnecting.
// @Tags Live
// @Param view path string true "View name"
// @Param token query string false "Access token when the Authorization header cannot be set"
// @Security BearerAuth
// @Success 101 {string} string "Switching Protocols"
// @Failure 400 {object} response.Envelope
// @Router /live/{view} [get]
func (h *LiveHandler) Stream(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	names, err := parseViewNames(c.Param("view"))
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ls, err := h.service.Open(ctx, actor, names)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer ls.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session_id", ls.ID))
	incoming := make(chan liveClientMessage)
	go h.readLoop(ctx, cancel, conn, incoming)

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	changes := ls.Changes()
	if err := h.pushViews(conn, ls, names); err != nil {
		logger.Debug("live write failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			changes = ls.Changes()
			if err := h.pushViews(conn, ls, names); err != nil {
				logger.Debug("live write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("live ping failed", zap.Error(err))
				return
			}
		case msg := <-incoming:
			if err := h.handleClientMessage(ctx, conn, ls, msg); err != nil {
				logger.Debug("live write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *LiveHandler) handleClientMessage(ctx context.Context, conn *websocket.Conn, ls *service.LiveSession, msg liveClientMessage) error {
	if msg.Type != liveMessageReauth {
		return h.write(conn, liveServerMessage{
			Type:  liveMessageError,
			Error: appErrors.Clone(appErrors.ErrValidation, "unsupported message type"),
		})
	}
	if err := h.service.Reauthenticate(ctx, ls, msg.Token); err != nil {
		return h.write(conn, liveServerMessage{Type: liveMessageError, Error: appErrors.FromError(err)})
	}
	return h.write(conn, liveServerMessage{Type: liveMessageReauthed})
}

func (h *LiveHandler) pushViews(conn *websocket.Conn, ls *service.LiveSession, names []live.ViewName) error {
	for _, name := range names {
		payload, err := ls.Render(name)
		if err != nil {
			// Absent while the viewer is being switched.
			continue
		}
		if err := h.write(conn, liveServerMessage{Type: liveMessageSnapshot, View: name, Data: payload}); err != nil {
			return err
		}
	}
	return nil
}

func (h *LiveHandler) write(conn *websocket.Conn, msg liveServerMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (h *LiveHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, incoming chan<- liveClientMessage) {
	defer cancel()

	pongWait := 2 * h.cfg.PingInterval
	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg liveClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("live connection closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case incoming <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func parseViewNames(raw string) ([]live.ViewName, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "all" {
		return live.AllViews, nil
	}
	seen := map[live.ViewName]bool{}
	names := make([]live.ViewName, 0, len(live.AllViews))
	for _, part := range strings.Split(raw, ",") {
		name, err := live.ParseViewName(strings.TrimSpace(part))
		if err != nil {
			if errors.Is(err, live.ErrUnknownView) {
				return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
			}
			return nil, err
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}
