package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 傳輸層：WebSocket 收容所有客戶端連線，對核心只暴露 Conn 抽象。
//
// 核心挑戰：
//   1. 連接管理：斷線必須及時轉成 Disconnect，之後的推送成為無害 no-op
//   2. 心跳機制：檢測死連接（網絡異常、瀏覽器崩潰）
//   3. 非阻塞推送：tick 廣播不能被慢客戶端拖住
//
// 設計方案：
//   ✅ 每連線一條緩衝 Send channel + 專屬讀寫 goroutine
//   ✅ Ping/Pong 心跳（54s/60s）
//   ✅ 緩衝滿時丟幀 - 下一個 tick 的快照會補上最新狀態

// Hub WebSocket 連線中心。
type Hub struct {
	manager  *Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
}

// Client 一條 WebSocket 連線，實作核心的 Conn 抽象。
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewHub 創建 WebSocket Hub。
func NewHub(manager *Manager, logger *slog.Logger) *Hub {
	return &Hub{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[string]*Client),
	}
}

// ServeWS 處理 WebSocket 升級並接入一條新的邏輯連線。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	hub.mu.Lock()
	hub.clients[client.id] = client
	hub.mu.Unlock()

	hub.manager.Register(client)

	go client.writePump()
	go client.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", client.id, "remote", r.RemoteAddr)
}

// remove 取消註冊連線。
func (hub *Hub) remove(client *Client) {
	hub.mu.Lock()
	if actual, exists := hub.clients[client.id]; exists && actual == client {
		delete(hub.clients, client.id)
	}
	hub.mu.Unlock()

	client.closeOnce.Do(func() {
		close(client.send)
	})
}

// Stop 關閉所有連線。
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, client := range hub.clients {
		client.closeOnce.Do(func() {
			close(client.send)
		})
		client.conn.Close()
	}
	hub.clients = make(map[string]*Client)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// ID 回傳連線的不透明識別碼。
func (c *Client) ID() string {
	return c.id
}

// Send 非阻塞地推送一則訊息。
//
// 緩衝區滿（慢客戶端）時直接丟幀：協議是 fire-and-forget，狀態快照
// 每 tick 都會重送最新值，丟掉中間幀不影響正確性。已關閉的連線由
// recover 吸收，推送成為無害 no-op。
func (c *Client) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("序列化訊息失敗", "error", err, "conn_id", c.id)
		return
	}

	defer func() {
		// send channel 可能已被 remove 關閉（連線在推送途中離開）
		_ = recover()
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("連接緩衝區滿，丟棄訊息", "conn_id", c.id)
	}
}

// readPump 讀取客戶端訊息。
//
// 心跳機制（讀取端）：60 秒內沒有收到任何訊息（包括 Pong）就關閉
// 連線；收到 Pong 重置超時。配合 writePump 的 54 秒 Ping，留 6 秒
// 網絡餘量。
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.hub.manager.Disconnect(c)
		c.conn.Close()
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.id)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.hub.manager.HandleMessage(c, message)
		}
	}
}

// writePump 寫入訊息到客戶端。
//
// 心跳機制（發送端）：每 54 秒發送 Ping（避開常見的 60 秒代理超
// 時，留 6 秒餘量）；客戶端瀏覽器自動回覆 Pong，readPump 據此重置
// 讀取超時。
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.conn.SetWriteDeadline(deadline); err == nil {
					_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.hub.logger.Error("發送訊息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
