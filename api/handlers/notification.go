package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NotificationHub keeps one live socket per signed in user
type NotificationHub struct {
	clients map[string]*websocket.Conn
	mutex   sync.Mutex
}

// NewNotificationHub returns an empty hub
func NewNotificationHub() *NotificationHub {
	return &NotificationHub{clients: make(map[string]*websocket.Conn)}
}

// Connected reports whether userID has a live socket
func (h *NotificationHub) Connected(userID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *NotificationHub) register(userID string, conn *websocket.Conn) {
	h.mutex.Lock()
	if old, ok := h.clients[userID]; ok && old != conn {
		old.Close()
	}
	h.clients[userID] = conn
	h.mutex.Unlock()
}

func (h *NotificationHub) unregister(userID string, conn *websocket.Conn) {
	h.mutex.Lock()
	if cur, ok := h.clients[userID]; ok && cur == conn {
		delete(h.clients, userID)
	}
	h.mutex.Unlock()
}

// Push sends payload to userID. It reports false when the user has no live
// socket or the write failed, in which case the socket is dropped.
func (h *NotificationHub) Push(userID string, payload interface{}) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	conn, ok := h.clients[userID]
	if !ok {
		return false
	}
	err := conn.WriteJSON(map[string]interface{}{
		"event": "new_notification",
		"data":  payload,
	})
	if err != nil {
		zap.S().Warnw("dropping notification socket", "userId", userID, "error", err)
		delete(h.clients, userID)
		conn.Close()
		return false
	}
	return true
}

var _ services.Pusher = (*NotificationHub)(nil)

// Notification serves the notification inbox and its live socket
type Notification struct {
	Service *services.NotificationService
	Hub     *NotificationHub
}

// ListHandler returns the caller's notifications, newest first
func (n Notification) ListHandler(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, "invalid paging", err)
		return
	}
	unread := r.URL.Query().Get("unread") == "true"

	items, err := n.Service.List(r.Context(), p.UserID, unread, page)
	if err != nil {
		writeError(w, "failed to list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkReadHandler marks one of the caller's notifications read
func (n Notification) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid notification id", err)
		return
	}
	if err := n.Service.MarkRead(r.Context(), id, caller(r).UserID); err != nil {
		writeError(w, "failed to mark notification read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

// SocketHandler upgrades the authenticated caller to a websocket that
// receives a message for every notification created for them.
func (n Notification) SocketHandler(w http.ResponseWriter, r *http.Request) {
	userID := caller(r).UserID.Hex()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		zap.S().Warnw("websocket upgrade failed", "userId", userID, "error", err)
		return
	}
	n.Hub.register(userID, conn)
	zap.S().Infow("notification socket connected", "userId", userID)

	defer func() {
		n.Hub.unregister(userID, conn)
		conn.Close()
		zap.S().Infow("notification socket disconnected", "userId", userID)
	}()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
