package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/audit"
	"github.com/longmans/prompt-agent/internal/metrics"
	"github.com/longmans/prompt-agent/internal/optimizer"
)

// WebSocket message types
const (
	MessageTypeStep   = "step"
	MessageTypeResult = "result"
	MessageTypeError  = "error"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsRequestTimeout = 30 * time.Second
	wsMaxRequestSize = 1 << 20
	wsStepBuffer     = 8
)

var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// WSStep reports the completion of one step.
type WSStep struct {
	Stage      optimizer.Stage `json:"stage"`
	Step       optimizer.Step  `json:"step"`
	Index      int             `json:"index"`
	Total      int             `json:"total"`
	Fallback   bool            `json:"fallback"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// WSMessage is one frame sent to the client.
type WSMessage struct {
	Type      string              `json:"type"`
	Step      *WSStep             `json:"step,omitempty"`
	Result    *optimizer.Response `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	Status    int                 `json:"status,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// wsUpgrader wraps websocket.Upgrader with the configured origin allow list.
type wsUpgrader struct {
	websocket.Upgrader
}

// newUpgrader allows the given origins ("*" allows all; empty means the
// local development origins). Requests without an Origin header are allowed.
func newUpgrader(allowed []string) *wsUpgrader {
	if len(allowed) == 0 {
		allowed = defaultAllowedOrigins
	}
	wildcard := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}

	return &wsUpgrader{websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil || u.Host == "" {
				return false
			}
			return set[strings.ToLower(u.Scheme+"://"+u.Host)]
		},
	}}
}

// wsConnection serializes writes to one client.
type wsConnection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send sends a message to the client
func (c *wsConnection) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg.Timestamp = time.Now()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

// handleOptimizeStream upgrades the connection, reads one request (JSON or
// keyword text) and streams a step message per step followed by the result.
// Closing the socket cancels the run.
func (s *Server) handleOptimizeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	wsc := &wsConnection{conn: conn}
	conn.SetReadLimit(wsMaxRequestSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			s.logger.Warn("WebSocket read error", zap.Error(err))
		}
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	req, err := optimizer.ParseRequest(payload)
	if err != nil {
		s.sendFailure(wsc, err)
		return
	}

	ctx, cancel := context.WithCancel(audit.WithCorrelationID(r.Context(), audit.GenerateCorrelationID()))
	defer cancel()

	// The client sends nothing after the request; a read error means it left.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	steps := make(chan optimizer.StepEvent, wsStepBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range steps {
			if err := wsc.send(WSMessage{Type: MessageTypeStep, Step: toWSStep(ev)}); err != nil {
				s.logger.Debug("failed to send step", zap.Error(err))
			}
		}
	}()

	resp, err := s.service.Optimize(ctx, req, func(ev optimizer.StepEvent) {
		select {
		case steps <- ev:
		default:
		}
	})
	close(steps)
	<-writerDone

	if err != nil {
		s.sendFailure(wsc, err)
	} else if err := wsc.send(WSMessage{Type: MessageTypeResult, Result: &resp}); err != nil {
		s.logger.Debug("failed to send result", zap.Error(err))
	}

	wsc.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
	wsc.mu.Unlock()
	_ = conn.Close()
	<-readerDone
}

func (s *Server) sendFailure(wsc *wsConnection, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("streamed run failed", zap.Error(err))
	}
	_ = wsc.send(WSMessage{Type: MessageTypeError, Error: err.Error(), Status: code})
}

func toWSStep(ev optimizer.StepEvent) *WSStep {
	st := &WSStep{
		Stage:      ev.Stage,
		Step:       ev.Step,
		Index:      ev.Index,
		Total:      ev.Total,
		Fallback:   ev.Fallback,
		DurationMs: ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		st.Error = ev.Err.Error()
	}
	return st
}
