package ws

import (
	"net/http"
	"sync"

	"ReadCamp/logger"
	"ReadCamp/middleware/security"
	profilemodel "ReadCamp/module/profile/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the push frame for the UI: banners (persistent error state),
// toasts (per-action results), and fresh stats snapshots.
type Event struct {
	Kind    string `json:"kind"` // banner | banner_clear | toast | stats
	OK      bool   `json:"ok,omitempty"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans coordinator signals out to each user's open sockets. Connect and
// disconnect are reported to onPresence, which feeds the presence provider.
type Hub struct {
	upgrader   websocket.Upgrader
	onPresence func(userID string, connected bool)

	mu    sync.Mutex
	conns map[string]map[*client]struct{}
}

// client serializes writes to one socket. gorilla allows a single writer at
// a time, and the per-conn mutex keeps one slow peer from stalling the hub.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (cl *client) send(ev Event) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn.WriteJSON(ev)
}

func NewHub(onPresence func(userID string, connected bool)) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		onPresence: onPresence,
		conns:      make(map[string]map[*client]struct{}),
	}
}

// Handle upgrades an authenticated request and parks it until the peer
// goes away. Incoming frames are drained and ignored; this channel is
// push-only.
func (h *Hub) Handle(c *gin.Context) {
	userID := security.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 1002, "msg": "token required"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", zap.String("user", userID), zap.Error(err))
		return
	}

	cl := &client{conn: conn}
	h.register(userID, cl)
	defer h.unregister(userID, cl)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(userID string, cl *client) {
	h.mu.Lock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.conns[userID] = set
	}
	first := len(set) == 0
	set[cl] = struct{}{}
	h.mu.Unlock()

	if first && h.onPresence != nil {
		h.onPresence(userID, true)
	}
}

func (h *Hub) unregister(userID string, cl *client) {
	_ = cl.conn.Close()
	h.mu.Lock()
	set := h.conns[userID]
	delete(set, cl)
	last := len(set) == 0
	if last {
		delete(h.conns, userID)
	}
	h.mu.Unlock()

	if last && h.onPresence != nil {
		h.onPresence(userID, false)
	}
}

// sendTo snapshots the user's connections under the hub lock, then writes
// outside it so a stalled socket cannot block pushes to anyone else.
func (h *Hub) sendTo(userID string, ev Event) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.conns[userID]))
	for cl := range h.conns[userID] {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		if err := cl.send(ev); err != nil {
			// the read loop observes the close and unregisters
			_ = cl.conn.Close()
		}
	}
}

// UserChannel scopes hub pushes to one session. It is the coordinator's
// notification surface.
type UserChannel struct {
	h      *Hub
	userID string
}

func (h *Hub) ForUser(userID string) *UserChannel {
	return &UserChannel{h: h, userID: userID}
}

func (u *UserChannel) Banner(msg string) {
	u.h.sendTo(u.userID, Event{Kind: "banner", Message: msg})
}

func (u *UserChannel) ClearBanner() {
	u.h.sendTo(u.userID, Event{Kind: "banner_clear"})
}

func (u *UserChannel) Toast(ok bool, msg string) {
	u.h.sendTo(u.userID, Event{Kind: "toast", OK: ok, Message: msg})
}

func (u *UserChannel) PushStats(s *profilemodel.UserStats) {
	u.h.sendTo(u.userID, Event{Kind: "stats", Payload: s})
}
