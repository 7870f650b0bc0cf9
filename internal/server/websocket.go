package server

import (
	"net/http"
	"time"

	"tunebox/internal/player"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
)

// Kinds of messages pushed to player websocket clients
const (
	wsKindState   = "state"
	wsKindCommand = "command"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is one server-to-client message
type wsMessage struct {
	Kind    string           `json:"kind"`
	State   *player.Snapshot `json:"state,omitempty"`
	Command *player.Command  `json:"command,omitempty"`
}

// handlePlayerWebSocket attaches a renderer. The client receives state
// snapshots and media commands, and reports media element events back.
func (ms *MusicServer) handlePlayerWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		ms.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := ms.logger.WithFields(logrus.Fields{
		"remote_addr": r.RemoteAddr,
		"request_id":  requestIDFrom(r.Context()),
	})

	states := ms.player.Subscribe()
	defer ms.player.Unsubscribe(states)
	commands := ms.remote.Subscribe()
	defer ms.remote.Unsubscribe(commands)

	logger.WithField("renderers", ms.remote.Renderers()).Info("Player client connected")

	// Bring the new renderer up to date before streaming
	snapshot := ms.player.Snapshot()
	if err := ms.writeWS(conn, wsMessage{Kind: wsKindState, State: &snapshot}); err != nil {
		return
	}
	for _, cmd := range ms.remote.Replay() {
		if err := ms.writeWS(conn, wsMessage{Kind: wsKindCommand, Command: &cmd}); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go ms.readPlayerEvents(conn, logger, done)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Info("Player client disconnected")
			return
		case snap, ok := <-states:
			if !ok {
				return
			}
			if err := ms.writeWS(conn, wsMessage{Kind: wsKindState, State: &snap}); err != nil {
				logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := ms.writeWS(conn, wsMessage{Kind: wsKindCommand, Command: &cmd}); err != nil {
				logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPlayerEvents applies events sent by the client until the connection
// closes, then closes done.
func (ms *MusicServer) readPlayerEvents(conn *websocket.Conn, logger *logrus.Entry, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var event playerEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("WebSocket closed unexpectedly")
			}
			return
		}
		if verr := ms.applyPlayerEvent(event); verr != nil {
			logger.WithField("type", event.Type).Debug("Ignoring unknown player event")
		}
	}
}

func (ms *MusicServer) writeWS(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
