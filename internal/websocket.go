package internal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把一條 WebSocket 連線接上房間的比賽狀態機？
//
// 核心挑戰：
//   1. 生命週期對齊：連線斷開 = 玩家離開房間，不能有殘留狀態
//   2. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   3. 錯誤隔離：單一客戶端送壞訊息，只回錯誤不斷線
//   4. 寫入序列化：一條連線只允許一條 goroutine 寫入
//
// 設計方案：
//   - 讀寫幫浦分離：readPump 收按鍵、writePump 排空外送佇列
//   - Ping/Pong 心跳檢測死連接（54s/60s）
//   - readPump 的 defer 負責離房與關閉，斷線路徑唯一
//   - 壞訊息回 Error 訊框，連線照常服務

// 心跳與寫入期限配置：
//   writePump 54s Ping → 網絡傳輸 < 6s → readPump 60s 超時
//   54 秒避開常見代理的 60 秒閾值，留 6 秒余量
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// 回送給客戶端的協定錯誤文案，與前端約定為英文
const (
	errTextMalformed  = "Invalid JSON format"
	errTextUnexpected = "Unexpected message type"
)

// Authenticator 在升級連線前驗證請求者身份
type Authenticator interface {
	Authenticate(r *http.Request) (User, error)
}

// QueryAuthenticator 以查詢參數帶入使用者名稱的簡易驗證。
// 開發與測試用；生產環境應改為驗證 token 的實作。
type QueryAuthenticator struct{}

// Authenticate 從 username 查詢參數建立使用者身份
func (QueryAuthenticator) Authenticate(r *http.Request) (User, error) {
	username := r.URL.Query().Get("username")
	if username == "" {
		return User{}, errors.New("缺少 username 參數")
	}

	return User{
		ID:       uuid.New(),
		Username: username,
		Role:     "user",
		JoinedAt: time.Now(),
	}, nil
}

// GameServer 處理比賽的 WebSocket 連線
type GameServer struct {
	registry *Registry
	auth     Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader

	outboundBuffer int
}

// NewGameServer 建立 WebSocket 伺服器
func NewGameServer(registry *Registry, auth Authenticator, logger *slog.Logger, outboundBuffer int) *GameServer {
	if outboundBuffer <= 0 {
		outboundBuffer = 256
	}

	return &GameServer{
		registry: registry,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		outboundBuffer: outboundBuffer,
	}
}

// ServeWS 處理 WebSocket 連接：驗證、升級、加入房間、啟動讀寫幫浦
func (s *GameServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("room_id"))
	if err != nil {
		http.Error(w, "無效的房間 ID", http.StatusBadRequest)
		return
	}

	// 先驗證身份，再碰房間狀態
	user, err := s.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "驗證失敗", http.StatusUnauthorized)
		return
	}

	if _, ok := s.registry.Room(roomID); !ok {
		http.Error(w, "房間不存在", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	out := NewOutbound(s.outboundBuffer)

	if err := s.registry.JoinRoom(r.Context(), roomID, user, out); err != nil {
		s.logger.Error("加入房間失敗", "room_id", roomID, "user_id", user.ID, "error", err)
		out.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room closed"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		out:    out,
		roomID: roomID,
		userID: user.ID,
	}

	go c.writePump()
	go c.readPump()

	s.logger.Info("WebSocket 連接建立",
		"room_id", roomID,
		"user_id", user.ID,
		"username", user.Username)
}

// client 一條已加入房間的連線
type client struct {
	server *GameServer
	conn   *websocket.Conn
	out    *Outbound
	roomID uuid.UUID
	userID uuid.UUID
}

// readPump 讀取客戶端按鍵。
// 連線結束時（正常關閉或超時）由 defer 統一執行離房與資源回收，
// 斷線處理只有這一條路徑。
func (c *client) readPump() {
	defer func() {
		c.server.registry.LeaveRoom(context.Background(), c.roomID, c.userID)
		c.out.Close()
		c.conn.Close()
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.server.logger.Error("設置讀取期限失敗", "error", err)
	}

	// Pong 處理器（收到 Pong 重置超時）
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.server.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"room_id", c.roomID,
					"user_id", c.userID)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleFrame(message)
		}
	}
}

// handleFrame 解析並分派單一訊框。
// 壞訊息回送 Error 後繼續服務，不關閉連線。
func (c *client) handleFrame(message []byte) {
	msg, err := DecodeClientMessage(message)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnexpectedMessage):
			c.server.registry.ReportError(c.roomID, c.userID, errTextUnexpected)
		default:
			c.server.registry.ReportError(c.roomID, c.userID, errTextMalformed)
		}
		return
	}

	c.server.registry.HandleKeystroke(context.Background(), c.roomID, c.userID, msg)
}

// writePump 排空外送佇列並維持心跳。
// 佇列關閉（房間結束或 readPump 收尾）時送出關閉訊框後返回。
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.out.Queue():
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.server.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// 佇列已關閉，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.conn.SetWriteDeadline(deadline); err == nil {
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.out.Queue())
			for i := 0; i < n; i++ {
				extra, ok := <-c.out.Queue()
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, extra); err != nil {
					c.server.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.server.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
