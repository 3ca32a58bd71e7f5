package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   房間的建立、加入、起跑倒數、完賽結算與移除橫跨多條 goroutine，
//   如何讓每個決策點（最後離開者、全員完賽）恰好觸發一次？
//
// 核心挑戰：
//   1. 移除決策：最後一位離開者與全員完賽都要求「檢查 + 移除」原子化
//   2. 倒數競態：倒數期間玩家可能離開，房間可能被移除
//   3. 結算冪等：每位玩家的 Finished 訊息與成績寫入恰好一次
//   4. 失敗隔離：資料庫故障不能中斷進行中的比賽
//
// 設計方案：
//   - 註冊表寫鎖涵蓋整個「檢查條件 → 移除房間」序列，決策不會交錯
//   - 倒數結束後重新查詢房間，已移除則安靜放棄
//   - 完賽轉換在房間寫鎖內判定，狀態翻轉後的按鍵直接忽略
//   - 持久化失敗只記日誌，記憶體狀態為唯一真相

// 倒數與統計輪詢的預設節奏
const (
	defaultCountdown     = 10 * time.Second
	defaultStatsInterval = 3 * time.Second
)

var (
	// ErrRoomNotFound 房間不存在或已關閉
	ErrRoomNotFound = fmt.Errorf("room not found")
	// ErrPlayerNotFound 玩家不在房間中
	ErrPlayerNotFound = fmt.Errorf("player not found")
	// ErrAlreadyStarted 比賽已開始或倒數已排程
	ErrAlreadyStarted = fmt.Errorf("race already started")
)

// RoomSummary 房間列表用的摘要
type RoomSummary struct {
	RoomID     uuid.UUID `json:"room_id"`
	Players    int       `json:"players"`
	Started    bool      `json:"started"`
	Dictionary string    `json:"dictionary"`
}

// Registry 管理所有活躍房間的生命週期
type Registry struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room

	store  Store
	logger *slog.Logger

	countdown     time.Duration
	statsInterval time.Duration
}

// NewRegistry 建立註冊表；countdown 或 statsInterval 為零時採用預設值
func NewRegistry(store Store, logger *slog.Logger, countdown, statsInterval time.Duration) *Registry {
	if countdown <= 0 {
		countdown = defaultCountdown
	}
	if statsInterval <= 0 {
		statsInterval = defaultStatsInterval
	}

	return &Registry{
		rooms:         make(map[uuid.UUID]*Room),
		store:         store,
		logger:        logger,
		countdown:     countdown,
		statsInterval: statsInterval,
	}
}

// CreateRoom 建立房間並啟動其統計輪詢器
func (reg *Registry) CreateRoom(ctx context.Context, text Text, dictionary Dictionary) uuid.UUID {
	roomID := uuid.New()
	room := NewRoom(roomID, text, dictionary)

	if err := reg.store.CreateRoom(ctx, RoomRecord{
		ID:        roomID,
		TextID:    text.ID,
		CreatedAt: time.Now(),
	}); err != nil {
		reg.logger.Error("寫入房間記錄失敗", "room_id", roomID, "error", err)
	}

	reg.mu.Lock()
	reg.rooms[roomID] = room
	reg.mu.Unlock()

	go reg.statsLoop(roomID)

	reg.logger.Info("房間已建立",
		"room_id", roomID,
		"dictionary", dictionary.Name,
	)

	return roomID
}

// Room 查詢活躍房間
func (reg *Registry) Room(roomID uuid.UUID) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// ListSummaries 回傳所有活躍房間的摘要
func (reg *Registry) ListSummaries() []RoomSummary {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.Mu.RLock()
		summaries = append(summaries, RoomSummary{
			RoomID:     room.ID,
			Players:    len(room.Players),
			Started:    room.Started,
			Dictionary: room.Dictionary.Name,
		})
		room.Mu.RUnlock()
	}
	return summaries
}

// JoinRoom 將玩家加入房間並廣播最新名單
func (reg *Registry) JoinRoom(ctx context.Context, roomID uuid.UUID, user User, out *Outbound) error {
	room, ok := reg.Room(roomID)
	if !ok {
		return fmt.Errorf("join room %s: %w", roomID, ErrRoomNotFound)
	}

	roomUserID := uuid.New()
	if err := reg.store.CreateRoomUser(ctx, RoomUserRecord{
		ID:       roomUserID,
		RoomID:   roomID,
		UserID:   user.ID,
		JoinedAt: user.JoinedAt,
	}); err != nil {
		reg.logger.Error("寫入參賽記錄失敗", "room_id", roomID, "user_id", user.ID, "error", err)
	}

	player := &Player{
		ID:         user.ID,
		Username:   user.Username,
		Role:       user.Role,
		JoinedAt:   user.JoinedAt,
		RoomUserID: roomUserID,
		Status:     StatusIdle,
		Connected:  true,
		Out:        out,
	}

	room.Mu.Lock()
	room.Players[user.ID] = player
	room.Mu.Unlock()

	room.Broadcast(NewRoomUpdateMessage(room.Snapshot()))

	reg.logger.Info("玩家加入房間",
		"room_id", roomID,
		"user_id", user.ID,
		"username", user.Username,
	)

	return nil
}

// LeaveRoom 處理玩家離線。
//
// 未完賽者標記為 Dropped，統計凍結；若這是最後一條活躍連線，
// 房間自註冊表移除。移除決策在註冊表寫鎖內完成，
// 兩位玩家同時離開時只有一位觀察到「最後離開者」條件。
func (reg *Registry) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) {
	reg.mu.Lock()

	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return
	}

	room.Mu.Lock()
	player, ok := room.Players[userID]
	if !ok {
		room.Mu.Unlock()
		reg.mu.Unlock()
		return
	}

	player.Connected = false
	if player.Status != StatusFinished {
		player.Status = StatusDropped
	}
	roomUserID := player.RoomUserID

	lastLeaver := true
	for _, p := range room.Players {
		if p.Connected {
			lastLeaver = false
			break
		}
	}
	room.Mu.Unlock()

	if lastLeaver {
		delete(reg.rooms, roomID)
		room.markRemoved()
	}
	reg.mu.Unlock()

	if err := reg.store.SetRoomUserLeft(ctx, roomUserID, time.Now()); err != nil {
		reg.logger.Error("標記離場時刻失敗", "room_id", roomID, "user_id", userID, "error", err)
	}

	if lastLeaver {
		if err := reg.store.SetRoomEnded(ctx, roomID, time.Now()); err != nil {
			reg.logger.Error("標記房間結束失敗", "room_id", roomID, "error", err)
		}
		reg.logger.Info("最後一位玩家離開，房間已移除", "room_id", roomID)
		return
	}

	room.Broadcast(NewUserLeftMessage(userID))
	room.Broadcast(NewRoomUpdateMessage(room.Snapshot()))

	reg.logger.Info("玩家離開房間", "room_id", roomID, "user_id", userID)
}

// StartCountdown 排程比賽倒數。
// 已開始或倒數進行中回傳 ErrAlreadyStarted，重複觸發只有第一次生效。
func (reg *Registry) StartCountdown(roomID uuid.UUID) error {
	room, ok := reg.Room(roomID)
	if !ok {
		return fmt.Errorf("start room %s: %w", roomID, ErrRoomNotFound)
	}

	room.Mu.Lock()
	if room.Started || room.starting {
		room.Mu.Unlock()
		return fmt.Errorf("start room %s: %w", roomID, ErrAlreadyStarted)
	}
	room.starting = true
	room.Mu.Unlock()

	go reg.runCountdown(room)

	return nil
}

// runCountdown 廣播起跑時刻、睡到時刻到達後翻轉開始訊號。
// 倒數期間房間可能被移除（全員離線），屆時安靜放棄。
func (reg *Registry) runCountdown(room *Room) {
	startTime := time.Now().Add(reg.countdown)

	room.Mu.Lock()
	room.StartTime = startTime
	content := room.Text.Content
	room.Mu.Unlock()

	room.Broadcast(NewStartMessage(content, startTime))

	reg.logger.Info("倒數開始",
		"room_id", room.ID,
		"start_time", startTime,
		"countdown", reg.countdown,
	)

	time.Sleep(time.Until(startTime))

	if err := reg.store.SetRoomStarted(context.Background(), room.ID, startTime); err != nil {
		reg.logger.Error("標記起跑時刻失敗", "room_id", room.ID, "error", err)
	}

	if _, ok := reg.Room(room.ID); !ok {
		reg.logger.Info("倒數期間房間已移除", "room_id", room.ID)
		return
	}

	room.Mu.Lock()
	room.Started = true
	for _, p := range room.Players {
		if p.Connected && p.Status == StatusIdle {
			p.Status = StatusStarted
		}
	}
	room.Mu.Unlock()

	room.signalStart()

	reg.logger.Info("比賽開始", "room_id", room.ID)
}

// WaitForStart 阻塞直到房間起跑或被移除；房間不存在時立即返回
func (reg *Registry) WaitForStart(roomID uuid.UUID) {
	room, ok := reg.Room(roomID)
	if !ok {
		return
	}
	room.WaitForStart()
}

// statsLoop 統計輪詢器：週期性廣播全員即時進度。
// 房間自註冊表消失後終止，起跑前不廣播。
func (reg *Registry) statsLoop(roomID uuid.UUID) {
	ticker := time.NewTicker(reg.statsInterval)
	defer ticker.Stop()

	for range ticker.C {
		room, ok := reg.Room(roomID)
		if !ok {
			return
		}
		if !room.IsStarted() {
			continue
		}
		room.Broadcast(NewRoomUpdateMessage(room.Snapshot()))
	}
}

// finishedPlayer 完賽瞬間在房間鎖內擷取的快照，結算在鎖外進行
type finishedPlayer struct {
	userID     uuid.UUID
	roomUserID uuid.UUID
	typedCount int
	mistakes   int
	startTime  time.Time
	endTime    time.Time
	keystrokes []Keystroke
}

// HandleKeystroke 處理一次按鍵：評分、更新進度、推送 Update，
// 抵達終點時觸發結算。
//
// 起跑前或已完賽玩家的按鍵直接忽略，完賽判定在房間寫鎖內
// 恰好翻轉一次，結算因此是冪等的。
func (reg *Registry) HandleKeystroke(ctx context.Context, roomID, userID uuid.UUID, msg KeystrokeMessage) {
	room, ok := reg.Room(roomID)
	if !ok {
		return
	}

	now := time.Now()

	room.Mu.Lock()

	if !room.Started {
		room.Mu.Unlock()
		return
	}

	player, ok := room.Players[userID]
	if !ok {
		room.Mu.Unlock()
		return
	}
	if player.Status == StatusFinished || player.Status == StatusSpectator {
		room.Mu.Unlock()
		return
	}

	target := room.Text.Content
	outcome := ScoreStroke(target, player.TypedText, player.LastIsMistake, msg.Key)
	player.applyStroke(outcome, msg.Key, now)

	typedCount := len([]rune(player.TypedText))
	targetCount := len([]rune(target))
	player.Progress = Progress(typedCount, targetCount)

	finished := outcome.Correct && typedCount == targetCount
	if finished {
		player.Status = StatusFinished
	}

	typed := player.TypedText
	mistakes := player.Mistakes
	startTime := room.StartTime
	var fin finishedPlayer
	if finished {
		fin = finishedPlayer{
			userID:     userID,
			roomUserID: player.RoomUserID,
			typedCount: typedCount,
			mistakes:   mistakes,
			startTime:  startTime,
			endTime:    now,
			keystrokes: append([]Keystroke(nil), player.Keystrokes...),
		}
	}
	room.Mu.Unlock()

	elapsed := now.Sub(startTime)
	room.Unicast(userID, NewUpdateMessage(
		Progress(typedCount, targetCount),
		mistakes,
		SpeedWPM(typed, elapsed),
	))

	if finished {
		reg.finishPlayer(ctx, room, typed, fin)
	}
}

// finishPlayer 完賽結算：單播 Finished、廣播 UserFinished 與名單、
// 寫入成績，全員完賽時關閉房間。
func (reg *Registry) finishPlayer(ctx context.Context, room *Room, typed string, fin finishedPlayer) {
	elapsed := fin.endTime.Sub(fin.startTime)
	wpm := SpeedWPM(typed, elapsed)
	cpm := SpeedCPM(fin.typedCount, elapsed)

	room.Unicast(fin.userID, NewFinishedMessage(
		uint64(elapsed.Milliseconds()),
		fin.mistakes,
		Accuracy(fin.typedCount, fin.mistakes),
		wpm,
	))
	room.Broadcast(NewUserFinishedMessage(fin.userID))
	room.Broadcast(NewRoomUpdateMessage(room.Snapshot()))

	if err := reg.store.SetRoomUserLeft(ctx, fin.roomUserID, fin.endTime); err != nil {
		reg.logger.Error("標記離場時刻失敗", "room_id", room.ID, "user_id", fin.userID, "error", err)
	}
	if err := reg.store.InsertResult(ctx, ResultRecord{
		ID:         uuid.New(),
		RoomUserID: fin.roomUserID,
		StartTime:  fin.startTime,
		EndTime:    fin.endTime,
		Mistakes:   fin.mistakes,
		WPM:        wpm,
		CPM:        cpm,
		Keystrokes: fin.keystrokes,
	}); err != nil {
		reg.logger.Error("寫入完賽成績失敗", "room_id", room.ID, "user_id", fin.userID, "error", err)
	}

	reg.logger.Info("玩家完賽",
		"room_id", room.ID,
		"user_id", fin.userID,
		"wpm", wpm,
		"mistakes", fin.mistakes,
	)

	// 全員完賽 → 關閉房間。檢查與移除在註冊表寫鎖內完成，
	// 與最後離開者路徑互斥，二者至多一方觀察到移除條件。
	reg.mu.Lock()
	if _, ok := reg.rooms[room.ID]; !ok {
		reg.mu.Unlock()
		return
	}

	room.Mu.Lock()
	allFinished := true
	for _, p := range room.Players {
		if p.Connected && p.Status != StatusFinished {
			allFinished = false
			break
		}
	}

	var outs []*Outbound
	if allFinished {
		for _, p := range room.Players {
			if p.Connected {
				p.Connected = false
				outs = append(outs, p.Out)
			}
		}
	}
	room.Mu.Unlock()

	if allFinished {
		delete(reg.rooms, room.ID)
		room.markRemoved()
	}
	reg.mu.Unlock()

	if !allFinished {
		return
	}

	for _, out := range outs {
		out.Close()
	}

	if err := reg.store.SetRoomEnded(ctx, room.ID, time.Now()); err != nil {
		reg.logger.Error("標記房間結束失敗", "room_id", room.ID, "error", err)
	}

	reg.logger.Info("全員完賽，房間已關閉", "room_id", room.ID)
}

// ReportError 對單一玩家回送錯誤訊息
func (reg *Registry) ReportError(roomID, userID uuid.UUID, message string) {
	room, ok := reg.Room(roomID)
	if !ok {
		return
	}
	room.Unicast(userID, NewErrorMessage(message))
}
