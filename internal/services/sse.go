package services

import (
	"sync"
	"time"
)

// NotificationEvent is pushed to a user's live connections when a
// notification is stored.
type NotificationEvent struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type subscriber struct {
	userID uint
	ch     chan NotificationEvent
}

// NotificationHub fans notification events out to SSE clients. Each client
// only receives events addressed to its own user.
type NotificationHub struct {
	clients map[string]subscriber
	mu      sync.RWMutex
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{clients: make(map[string]subscriber)}
}

// Subscribe registers a client for userID's events.
func (h *NotificationHub) Subscribe(clientID string, userID uint) <-chan NotificationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan NotificationEvent, 32)
	h.clients[clientID] = subscriber{userID: userID, ch: ch}
	return ch
}

func (h *NotificationHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.clients[clientID]; ok {
		close(sub.ch)
		delete(h.clients, clientID)
	}
}

// Publish never blocks; a client with a full buffer misses the event and
// catches up through the unread list.
func (h *NotificationHub) Publish(event NotificationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.clients {
		if sub.userID != event.UserID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (h *NotificationHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
