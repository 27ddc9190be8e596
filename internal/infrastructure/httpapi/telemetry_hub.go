package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// telemetryFrame is the message pushed to every websocket subscriber on each
// sample.
type telemetryFrame struct {
	Snapshot domain.TelemetrySnapshot `json:"snapshot"`
	Peers    []domain.PeerTelemetry   `json:"peers"`
}

// TelemetryHub pushes telemetry samples to websocket subscribers (the debug
// panel). It implements ports.TelemetrySink; a slow subscriber is dropped
// rather than allowed to stall the broadcast.
type TelemetryHub struct {
	logger       *zap.SugaredLogger
	writeTimeout time.Duration

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewTelemetryHub(logger *zap.SugaredLogger) *TelemetryHub {
	return &TelemetryHub{
		logger:       logger,
		writeTimeout: 10 * time.Second,
		conns:        make(map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades a request into a telemetry subscription.
func (h *TelemetryHub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("telemetry websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Debugw("telemetry subscriber connected", "remote", conn.RemoteAddr())

	// Subscribers only listen. The read loop exists to observe the close.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// PublishTelemetry implements ports.TelemetrySink.
func (h *TelemetryHub) PublishTelemetry(snapshot domain.TelemetrySnapshot, peers []domain.PeerTelemetry) {
	frame := telemetryFrame{Snapshot: snapshot, Peers: peers}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debugw("telemetry subscriber write failed, dropping", "remote", conn.RemoteAddr(), "error", err)
			h.drop(conn)
		}
	}
}

// Close disconnects every subscriber.
func (h *TelemetryHub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *TelemetryHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}
