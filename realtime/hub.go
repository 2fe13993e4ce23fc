package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

// Event types
const (
	EventNotification = "notification"
	EventUnreadCount  = "unread_count"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	conn   *websocket.Conn
	userID uint
	mu     sync.Mutex // serializes writes
}

func (cl *client) write(messageType int, data []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(messageType, data)
}

// Hub tracks live websocket connections per user.
type Hub struct {
	clients  map[*websocket.Conn]*client
	mutex    sync.RWMutex
	upgrader websocket.Upgrader
}

func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[*websocket.Conn]*client)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) register(conn *websocket.Conn, userID uint) *client {
	cl := &client{conn: conn, userID: userID}
	h.mutex.Lock()
	h.clients[conn] = cl
	h.mutex.Unlock()
	return cl
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.clients, conn)
	h.mutex.Unlock()
	conn.Close()
}

// Connections returns how many live connections a user has.
func (h *Hub) Connections(userID uint) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, cl := range h.clients {
		if cl.userID == userID {
			n++
		}
	}
	return n
}

// SendToUser delivers msg to every connection of userID and returns how many received it.
func (h *Hub) SendToUser(userID uint, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Marshal realtime message")
		return 0
	}

	h.mutex.RLock()
	targets := make([]*client, 0, 1)
	for _, cl := range h.clients {
		if cl.userID == userID {
			targets = append(targets, cl)
		}
	}
	h.mutex.RUnlock()

	sent := 0
	for _, cl := range targets {
		if err := cl.write(websocket.TextMessage, data); err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{"user_id": userID, "event": msg.Event}).WithError(err).Warn("Realtime write failed")
			h.unregister(cl.conn)
			continue
		}
		sent++
	}
	return sent
}

// Serve upgrades the request and keeps the connection registered until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cl := h.register(conn, userID)
	defer h.unregister(conn)

	log := utils.InfoLogger.WithField("user_id", userID)
	log.Debug("Realtime client connected")

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := cl.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Clients only listen; inbound frames are read to process control messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug("Realtime client disconnected")
			return nil
		}
	}
}
