package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"coverpool/services/poold"
)

const wsWriteTimeout = 10 * time.Second

// handleEventStream upgrades to a websocket that carries committed events.
// Optional type and asset query parameters narrow the feed.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: http.StatusServiceUnavailable, Reason: "STREAM_DISABLED", Message: "event stream unavailable"})
		return
	}
	filter := eventFilter(r.URL.Query().Get("type"), r.URL.Query().Get("asset"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.hub.Subscribe(filter)
	defer cancel()
	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan poold.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			}
			if err := writeEnvelope(ctx, conn, env); err != nil {
				return err
			}
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env poold.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func eventFilter(eventType, asset string) func(poold.Envelope) bool {
	eventType = strings.TrimSpace(eventType)
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if eventType == "" && asset == "" {
		return nil
	}
	return func(env poold.Envelope) bool {
		if eventType != "" && env.Type != eventType {
			return false
		}
		if asset != "" && env.Attributes["asset"] != asset {
			return false
		}
		return true
	}
}
