// Package progress streams the elapsed recording time to websocket clients.
package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/babelcloud/screenrec/internal/util"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Update is one message of the progress stream.
type Update struct {
	Elapsed float64 `json:"elapsed"`
	Done    bool    `json:"done,omitempty"`
	Path    string  `json:"path,omitempty"`
	Error   string  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, no origin policy
	},
}

// Hub fans progress updates out to subscribers. A subscriber whose buffer is
// full is dropped instead of blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Update
	last        Update
	hasLast     bool
	closed      bool
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]chan Update),
	}
}

// Subscribe returns a channel receiving updates. The latest update, if any,
// is delivered immediately.
func (h *Hub) Subscribe(id string, bufferSize int) <-chan Update {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Update, bufferSize)
	if h.closed {
		if h.hasLast {
			ch <- h.last
		}
		close(ch)
		return ch
	}

	h.subscribers[id] = ch
	if h.hasLast {
		select {
		case ch <- h.last:
		default:
		}
	}

	util.GetLogger().Debug("Progress subscriber added", "id", id, "total", len(h.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish sends the elapsed seconds to every subscriber.
func (h *Hub) Publish(seconds float64) {
	h.broadcast(Update{Elapsed: seconds})
}

// Complete sends the final update. err takes precedence over path.
func (h *Hub) Complete(path string, err error) {
	h.mu.RLock()
	u := Update{Elapsed: h.last.Elapsed, Done: true}
	h.mu.RUnlock()

	if err != nil {
		u.Error = err.Error()
	} else {
		u.Path = path
	}
	h.broadcast(u)
}

func (h *Hub) broadcast(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.last = u
	h.hasLast = true

	for id, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			util.GetLogger().Warn("Dropping progress subscriber due to full channel", "id", id)
			close(ch)
			delete(h.subscribers, id)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request to a websocket and writes every update as
// JSON until the hub closes or the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := util.GetLogger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade progress websocket", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	updates := h.Subscribe(id, subscriberBuffer)
	defer h.Unsubscribe(id)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case u, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				<-gone
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(u); err != nil {
				logger.Debug("Progress client write failed", "id", id, "error", err)
				return
			}
		}
	}
}
