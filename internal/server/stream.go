package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 2 * pingInterval
	sendBuffer   = 32
)

var streamLog = logrus.WithField("component", "call_stream")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 看板与 API 同源部署
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// callHub 把新写入的通话推送给所有看板连接。慢客户端的消息直接丢弃。
type callHub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func newCallHub() *callHub {
	return &callHub{clients: make(map[*streamClient]struct{})}
}

func (h *callHub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *callHub) remove(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *callHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *callHub) broadcast(call Call) {
	msg, err := json.Marshal(map[string]any{"type": "call", "call": call})
	if err != nil {
		streamLog.Errorf("marshal call: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			streamLog.Warnf("drop message for slow client %s", c.conn.RemoteAddr())
		}
	}
}

func (h *callHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (s *Server) handleCallsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		streamLog.Warnf("upgrade: %v", err)
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, sendBuffer)}
	s.hub.add(c)
	streamLog.Infof("dashboard connected: %s (clients=%d)", conn.RemoteAddr(), s.hub.count())

	go s.readPump(c)
	s.writePump(c)
}

// readPump 只处理控制帧；读出错即断开
func (s *Server) readPump(c *streamClient) {
	defer s.hub.remove(c)
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		streamLog.Infof("dashboard disconnected: %s", c.conn.RemoteAddr())
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.hub.remove(c)
				return
			}
		}
	}
}
