package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"recorder-transcriber-service/internal/app"
	"recorder-transcriber-service/internal/events"
	"recorder-transcriber-service/internal/models"
	"recorder-transcriber-service/internal/observability/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 4096
)

// webSocketHandler serves the live listening channel. The connection is the
// publisher's single subscriber for as long as it stays open.
type webSocketHandler struct {
	app      *app.Application
	upgrader websocket.Upgrader
}

func newWebSocketHandler(application *app.Application) *webSocketHandler {
	return &webSocketHandler{
		app: application,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local clients only
			},
		},
	}
}

func (h *webSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := logging.WithSubscriber("websocket", id)

	sub, err := h.app.Publisher.Attach(id, "websocket")
	if err != nil {
		log.Warn().Err(err).Msg("Rejecting second streaming client")
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(errorEvent(err.Error()))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	// Detaching disarms listening.
	defer sub.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(models.WsConnectedEvent{Type: models.EventConnected, Message: models.ConnectedMessage}); err != nil {
		log.Warn().Err(err).Msg("Failed to greet client")
		return
	}
	log.Info().Str("remote", r.RemoteAddr).Msg("Streaming client connected")

	replies := make(chan any, 16)
	readerDone := make(chan struct{})
	go h.readLoop(conn, sub, replies, readerDone, log)
	h.writeLoop(conn, sub, replies, readerDone, log)

	log.Info().Msg("Streaming client disconnected")
}

// readLoop executes client commands. Command failures are answered with
// error events through replies.
func (h *webSocketHandler) readLoop(conn *websocket.Conn, sub *events.Subscription, replies chan<- any, done chan<- struct{}, log zerolog.Logger) {
	defer close(done)

	// The writer may be gone already; never block on it.
	reply := func(v any) {
		select {
		case replies <- v:
		default:
		}
	}

	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Streaming connection lost")
			}
			return
		}

		var cmd models.WsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply(errorEvent("invalid command: " + err.Error()))
			continue
		}
		if err := h.app.Validator.Validate(cmd); err != nil {
			reply(errorEvent(err.Error()))
			continue
		}
		if err := h.execute(sub, cmd); err != nil {
			log.Info().Err(err).Str("action", cmd.Action).Msg("Command rejected")
			reply(errorEvent(err.Error()))
		}
	}
}

func (h *webSocketHandler) execute(sub *events.Subscription, cmd models.WsCommand) error {
	switch cmd.Action {
	case models.ActionStart:
		_, err := h.app.ArmListening(sub)
		return err
	case models.ActionStop:
		return h.app.DisarmListening(context.Background(), sub)
	}
	return nil
}

// writeLoop is the only writer of conn once the greeting is sent.
func (h *webSocketHandler) writeLoop(conn *websocket.Conn, sub *events.Subscription, replies <-chan any, readerDone <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			log.Warn().Err(err).Msg("Failed to write event")
			return false
		}
		return true
	}

	for {
		select {
		case ev := <-sub.Events():
			if !write(ev.Payload()) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-sub.Done():
			// Detached by the publisher, typically a full queue.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber detached"),
				time.Now().Add(writeWait))
			return
		case <-readerDone:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func errorEvent(message string) models.WsErrorEvent {
	return models.WsErrorEvent{Type: models.EventError, Message: message, Timestamp: time.Now().UTC()}
}
