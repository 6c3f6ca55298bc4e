package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/services"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber delivers the payloads published on a channel until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) <-chan string
}

type RedisSubscriber struct {
	redis *redis.Client
}

func NewRedisSubscriber(redisClient *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{redis: redisClient}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, channel string) <-chan string {
	out := make(chan string)
	pubsub := s.redis.Subscribe(ctx, channel)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans out per-user pub/sub messages to that user's open connections.
// One subscription is held per connected user.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	subscriber  Subscriber
	tokens      TokenParser
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// TokenParser verifies the access token passed as the token query parameter.
type TokenParser interface {
	ParseAccessToken(raw string) (uuid.UUID, error)
}

func NewHub(subscriber Subscriber, tokens TokenParser, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		subscriber:  subscriber,
		tokens:      tokens,
		logger:      logger,
	}
}

func (h *Hub) authenticate(tokenStr string) (uuid.UUID, bool) {
	if tokenStr == "" {
		return uuid.Nil, false
	}
	userID, err := h.tokens.ParseAccessToken(tokenStr)
	if err != nil {
		h.logger.Debug("websocket token rejected", zap.Error(err))
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(r.URL.Query().Get("token"))
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.registerConnection(userID, c)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.unregisterConnection(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) registerConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	if len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		messages := h.subscriber.Subscribe(ctx, services.UserChannel(userID))

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for payload := range messages {
				h.broadcast(userID, []byte(payload))
			}
		}()
	}

	h.logger.Debug("websocket connected", zap.Stringer("user_id", userID), zap.Int("connections", len(h.connections[userID])))
}

func (h *Hub) unregisterConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_ = c.conn.Close()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	h.logger.Debug("websocket disconnected", zap.Stringer("user_id", userID))
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := append([]*client(nil), h.connections[userID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debug("websocket write failed", zap.Stringer("user_id", userID), zap.Error(err))
		}
	}
}

// SendToUser writes msg to the user's connections on this instance only.
func (h *Hub) SendToUser(userID uuid.UUID, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(userID, data)
}

// Connections reports how many sockets a user has open on this instance.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Close drops every connection and waits for the hub's goroutines.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, conns := range h.connections {
		all = append(all, conns...)
	}
	h.mu.RUnlock()

	for _, c := range all {
		_ = c.conn.Close()
	}
	h.wg.Wait()
}
