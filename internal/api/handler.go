package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"regime-seeker/internal/gateway"
	"regime-seeker/internal/model"
	"regime-seeker/internal/regime"
	"regime-seeker/internal/sizing"
	"regime-seeker/internal/watcher"
)

// InstrumentQuery selects one series. Missing fields take the defaults.
type InstrumentQuery struct {
	Exchange string `query:"exchange" default:"binance.us" validate:"required,max=32"`
	Symbol   string `query:"symbol" default:"BTC" validate:"required,max=20"`
	Interval string `query:"interval" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d 1w 1M"`
}

// Instrument returns the normalised instrument.
func (q *InstrumentQuery) Instrument() model.Instrument {
	return model.Instrument{
		Exchange: strings.ToLower(q.Exchange),
		Symbol:   strings.ToUpper(q.Symbol),
		Interval: q.Interval,
	}
}

// ReplayQuery asks for buffered envelopes of one channel.
type ReplayQuery struct {
	Channel string `query:"channel" validate:"required"`
	From    int64  `query:"from" validate:"gte=0"`
	To      int64  `query:"to" validate:"gtefield=From"`
}

// SignalsResponse is a view plus its presentation hints.
type SignalsResponse struct {
	*watcher.View
	Color string `json:"color"`
	Tip   string `json:"tip"`
}

// Handler serves the HTTP API.
type Handler struct {
	svc      *watcher.Service
	hub      *gateway.Hub
	health   http.Handler
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandler creates a Handler. hub and health may be nil.
func NewHandler(svc *watcher.Service, hub *gateway.Hub, health http.Handler, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		svc:    svc,
		hub:    hub,
		health: health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: l,
	}
}

// RegisterRoutes mounts every route under /api/v1.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/health", h.Health)
	g.GET("/instruments", h.Instruments)
	g.GET("/signals", h.Signals)
	g.GET("/profile", h.Profile)
	g.GET("/mtf", h.MTF)
	g.POST("/position-size", h.PositionSize)
	if h.hub != nil {
		g.GET("/ws", h.WS)
		g.GET("/missed", h.Missed)
	}
}

func (h *Handler) Health(c echo.Context) error {
	if h.health == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	h.health.ServeHTTP(c.Response(), c.Request())
	return nil
}

// Instruments lists the latest snapshot of every watched instrument.
func (h *Handler) Instruments(c echo.Context) error {
	views := h.svc.Views()
	out := make([]model.RegimeSnapshot, len(views))
	for i, v := range views {
		out[i] = v.Snapshot
	}
	return SuccessResponse(c, out)
}

// view returns the watched view for the query, or analyses it on demand.
func (h *Handler) view(c echo.Context) (*watcher.View, interface{}, error) {
	q := &InstrumentQuery{}
	if verr := ReadAndValidateRequest(c, q); verr != nil {
		return nil, verr, nil
	}
	inst := q.Instrument()
	if v, ok := h.svc.View(inst.Key()); ok {
		return v, nil, nil
	}
	v, err := h.svc.Inspect(c.Request().Context(), inst)
	return v, nil, err
}

func (h *Handler) Signals(c echo.Context) error {
	v, verr, err := h.view(c)
	if verr != nil {
		return BadRequestResponse(c, verr)
	}
	if err != nil {
		h.log.Warn("signals request failed", slog.String("error", err.Error()))
		return UpstreamErrorResponse(c, err)
	}
	return SuccessResponse(c, SignalsResponse{
		View:  v,
		Color: regime.Color(v.State),
		Tip:   regime.Tip(v.State),
	})
}

// Profile returns 204 when the window has no usable price range.
func (h *Handler) Profile(c echo.Context) error {
	v, verr, err := h.view(c)
	if verr != nil {
		return BadRequestResponse(c, verr)
	}
	if err != nil {
		return UpstreamErrorResponse(c, err)
	}
	if v.Profile == nil {
		return NoContentResponse(c)
	}
	return SuccessResponse(c, v.Profile)
}

func (h *Handler) MTF(c echo.Context) error {
	q := &InstrumentQuery{}
	if verr := ReadAndValidateRequest(c, q); verr != nil {
		return BadRequestResponse(c, verr)
	}
	inst := q.Instrument()
	if v, ok := h.svc.View(inst.Key()); ok && v.MTF != nil {
		return SuccessResponse(c, v.MTF)
	}
	view, err := h.svc.MTF(c.Request().Context(), inst)
	if err != nil {
		return UpstreamErrorResponse(c, err)
	}
	return SuccessResponse(c, view)
}

// PositionSize sizes a trade. Without an explicit state, the current
// regime and ATR of the first watched instrument with that symbol are used.
func (h *Handler) PositionSize(c echo.Context) error {
	req := &sizing.Request{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	if req.State == "" {
		symbol := strings.ToUpper(req.Symbol)
		for _, v := range h.svc.Views() {
			if v.Instrument.Symbol != symbol {
				continue
			}
			req.State = string(v.State)
			if req.ATR == 0 {
				req.ATR = v.ATR
			}
			break
		}
	}
	return SuccessResponse(c, sizing.Calculate(*req))
}

// WS upgrades to a WebSocket fed by the hub.
func (h *Handler) WS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return nil
	}
	h.hub.Serve(conn)
	return nil
}

// Missed returns buffered envelopes so a client can fill a sequence gap.
func (h *Handler) Missed(c echo.Context) error {
	q := &ReplayQuery{}
	if verr := ReadAndValidateRequest(c, q); verr != nil {
		return BadRequestResponse(c, verr)
	}
	channel := gateway.ChannelFor(q.Channel)
	raw := h.hub.ReplayRange(channel, q.From, q.To)
	out := make([]json.RawMessage, len(raw))
	for i, b := range raw {
		out[i] = b
	}
	return SuccessResponse(c, map[string]interface{}{
		"channel":     channel,
		"channel_seq": h.hub.ChannelSeq(channel),
		"envelopes":   out,
	})
}
