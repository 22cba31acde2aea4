package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Hub implements Bus over websocket connections.
// Delivery is fire and forget: at most once per mutation, no acknowledgement,
// no backlog for listeners disconnected at broadcast time.
type Hub struct {
	logger      logrus.FieldLogger
	upgrader    websocket.Upgrader
	mutex       sync.RWMutex
	connections map[*connection]struct{}
}

type connection struct {
	socket *websocket.Conn

	// serialises writes; broadcasts and pings originate from different goroutines
	writeMutex sync.Mutex
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin policing is delegated to the CORS layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections: make(map[*connection]struct{}),
	}
}

// Serve upgrades the request to a websocket connection and registers it with the hub.
// The read loop merely detects closure; clients aren't expected to send payloads.
func (h *Hub) Serve(writer http.ResponseWriter, request *http.Request) {
	socket, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.WithError(err).Warning("websocket upgrade failed")
		return
	}

	var conn = &connection{socket: socket}

	h.mutex.Lock()
	h.connections[conn] = struct{}{}
	var total = len(h.connections)
	h.mutex.Unlock()

	h.logger.Debugf("websocket listener connected (%d total)", total)

	go h.read(conn)
}

func (h *Hub) read(conn *connection) {
	for {
		if _, _, err := conn.socket.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *connection) {
	h.mutex.Lock()
	delete(h.connections, conn)
	h.mutex.Unlock()
	_ = conn.socket.Close()
}

func (h *Hub) PublishUpdate(kind, id string, data any) {
	h.broadcast(Event{Name: EntityUpdated, Kind: kind, Id: id, Data: data})
}

func (h *Hub) PublishDelete(kind, id string) {
	h.broadcast(Event{Name: EntityDeleted, Kind: kind, Id: id})
}

// broadcast serialises the event once and writes it to every connection open at call time.
// Listeners that fail the write are evicted; they'll re-fetch state on reconnection.
func (h *Hub) broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("can't serialise broadcast event")
		return
	}

	h.mutex.RLock()
	var targets = make([]*connection, 0, len(h.connections))
	for conn := range h.connections {
		targets = append(targets, conn)
	}
	h.mutex.RUnlock()

	for _, conn := range targets {
		if err = h.write(conn, websocket.TextMessage, payload); err != nil {
			h.logger.WithError(err).Debug("evicting unresponsive websocket listener")
			h.remove(conn)
		}
	}
}

func (h *Hub) write(conn *connection, messageType int, payload []byte) error {
	conn.writeMutex.Lock()
	defer conn.writeMutex.Unlock()
	_ = conn.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.socket.WriteMessage(messageType, payload)
}

// Heartbeat pings all connections at the given interval to keep them alive
// and detect dead peers; meant to run in its own goroutine.
func (h *Hub) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		h.mutex.RLock()
		var targets = make([]*connection, 0, len(h.connections))
		for conn := range h.connections {
			targets = append(targets, conn)
		}
		h.mutex.RUnlock()

		for _, conn := range targets {
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				h.remove(conn)
			}
		}
	}
}

// Close tears down every open connection, i.e. on server shutdown.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		_ = conn.socket.Close()
		delete(h.connections, conn)
	}
}
