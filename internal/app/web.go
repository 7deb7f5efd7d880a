package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	statusPushInterval = time.Second
	writeWait          = 2 * time.Second
	// calibration holds the loop for as long as the operator needs
	calibrationWait = 5 * time.Minute
)

// ClientCommand is a message accepted on the status websocket.
type ClientCommand struct {
	Action string `json:"action"`
	Sensor uint8  `json:"sensor"`
}

// ServerMessage is pushed on the status websocket.
type ServerMessage struct {
	Type    string         `json:"type"`
	Sensors []SensorStatus `json:"sensors,omitempty"`
	Sensor  *uint8         `json:"sensor,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StatusServer exposes tracker state over HTTP and a websocket.
type StatusServer struct {
	tracker  *Tracker
	clk      clock.Clock
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewStatusServer(tracker *Tracker, clk clock.Clock, logger *zap.SugaredLogger) *StatusServer {
	return &StatusServer{
		tracker: tracker,
		clk:     clk,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routes of the status surface.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sensors", s.handleSensors)
	mux.HandleFunc("/ws/status", s.handleStatusWS)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *StatusServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("web server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *StatusServer) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.tracker.Status()); err != nil {
		s.logger.Warnw("json encode error", "err", err)
	}
}

func (s *StatusServer) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// a single writer owns the connection
	outgoing := make(chan ServerMessage, 8)
	go s.writeLoop(ctx, conn, outgoing)

	for {
		var cmd ClientCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugw("websocket read", "err", err)
			}
			return
		}
		switch cmd.Action {
		case "calibrate":
			go s.runCalibration(ctx, cmd.Sensor, outgoing)
		default:
			sendMessage(ctx, outgoing, ServerMessage{Type: "error", Error: "unknown action " + cmd.Action})
		}
	}
}

func (s *StatusServer) runCalibration(ctx context.Context, sensor uint8, outgoing chan<- ServerMessage) {
	calCtx, cancel := context.WithTimeout(ctx, calibrationWait)
	defer cancel()

	msg := ServerMessage{Type: "calibration", Sensor: &sensor}
	if err := s.tracker.RequestCalibration(calCtx, sensor); err != nil {
		msg.Error = err.Error()
	}
	sendMessage(ctx, outgoing, msg)
}

func sendMessage(ctx context.Context, outgoing chan<- ServerMessage, msg ServerMessage) {
	select {
	case outgoing <- msg:
	case <-ctx.Done():
	}
}

func (s *StatusServer) writeLoop(ctx context.Context, conn *websocket.Conn, outgoing <-chan ServerMessage) {
	ticker := s.clk.Ticker(statusPushInterval)
	defer ticker.Stop()

	write := func(msg ServerMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debugw("websocket write", "err", err)
			return false
		}
		return true
	}

	if !write(ServerMessage{Type: "status", Sensors: s.tracker.Status()}) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outgoing:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if !write(ServerMessage{Type: "status", Sensors: s.tracker.Status()}) {
				return
			}
		}
	}
}
