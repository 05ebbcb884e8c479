package services

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StreamMessage 推送给客户端的引擎事件
type StreamMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// StreamClient 一个已连接的 dashboard 客户端
type StreamClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan StreamMessage
	Hub  *StreamHub
}

// StreamHub broadcasts engine lifecycle events (executions, notifications,
// escalations) to connected operator dashboards. It satisfies both
// engine.Publisher and notify.Publisher.
type StreamHub struct {
	clients    map[string]*StreamClient
	broadcast  chan StreamMessage
	register   chan *StreamClient
	unregister chan *StreamClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewStreamHub(logger *logrus.Logger) *StreamHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &StreamHub{
		clients:    make(map[string]*StreamClient),
		broadcast:  make(chan StreamMessage, 64),
		register:   make(chan *StreamClient),
		unregister: make(chan *StreamClient),
		logger:     logger,
	}
}

// PublishEngineEvent queues an event for broadcast; it never blocks engine
// paths, dropping the event when the hub is saturated.
func (h *StreamHub) PublishEngineEvent(eventType string, data interface{}) {
	msg := StreamMessage{Type: eventType, Data: data, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debugf("stream: dropping %s event, broadcast queue full", eventType)
	}
}

func (h *StreamHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Infof("stream: client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Infof("stream: client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for _, client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client.ID)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and registers a dashboard client.
func (h *StreamHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("stream: websocket upgrade failed: %v", err)
		return
	}

	client := &StreamClient{
		ID:   fmt.Sprintf("client_%d", time.Now().UnixNano()),
		Conn: conn,
		Send: make(chan StreamMessage, 256),
		Hub:  h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection; the feed is one-way, inbound frames only
// keep the connection alive.
func (c *StreamClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Errorf("stream: websocket error: %v", err)
			}
			break
		}
	}
}

func (c *StreamClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
