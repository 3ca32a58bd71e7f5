package internal

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   多條玩家連線共享同一個房間的比賽狀態，如何安全地序列化變更、
//   同步起跑時刻，並即時把進度推送給所有人？
//
// 核心挑戰：
//   1. 並發控制：多位玩家的按鍵同時到達同一個房間
//   2. 起跑同步：所有玩家必須在同一時刻得到開始訊號
//   3. 廣播隔離：推送 N 位玩家不能阻塞另一位玩家的按鍵處理
//   4. 生命週期：連線隨時斷開，房間狀態不能跟著連線陪葬
//
// 設計方案：
//   - RWMutex 保護玩家集合，寫鎖只涵蓋最小必要的狀態變更
//   - 開始訊號 = 一次性關閉的 channel（單寫多讀、不輪詢）
//   - 外送佇列非阻塞發送，已關閉或滿載的握把靜默丟棄
//   - 玩家只持有外送握把的發送端，不擁有連線生命週期

// PlayerStatus 玩家在一場比賽中的狀態
type PlayerStatus string

const (
	StatusIdle      PlayerStatus = "Idle"      // 已加入，等待起跑
	StatusStarted   PlayerStatus = "Started"   // 比賽進行中
	StatusDropped   PlayerStatus = "Dropped"   // 完賽前離線
	StatusFinished  PlayerStatus = "Finished"  // 已完賽
	StatusSpectator PlayerStatus = "Spectator" // 觀戰，不參與計分
)

// User 通過驗證的使用者身份，由 Auth 協作者在加入房間前提供
type User struct {
	ID       uuid.UUID
	Username string
	Role     string
	JoinedAt time.Time
}

// Outbound 一條連線的外送佇列握把。
//
// 玩家只持有發送端：連線任務擁有佇列的生命週期，
// 握把關閉後 Send 是無害的 no-op（訊息投遞，而非生命週期控制）。
type Outbound struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewOutbound 建立指定緩衝大小的外送佇列
func NewOutbound(size int) *Outbound {
	return &Outbound{ch: make(chan []byte, size)}
}

// Send 非阻塞發送。佇列已關閉或滿載時丟棄訊息並回傳 false，
// 慢客戶端不會拖住呼叫者。
func (o *Outbound) Send(message []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	select {
	case o.ch <- message:
		return true
	default:
		return false
	}
}

// Close 關閉佇列，重複呼叫是 no-op
func (o *Outbound) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// Queue 供連線的寫入幫浦讀取
func (o *Outbound) Queue() <-chan []byte {
	return o.ch
}

// Player 一位玩家的即時比賽狀態，由所屬房間獨佔持有
type Player struct {
	ID         uuid.UUID
	Username   string
	Role       string
	JoinedAt   time.Time
	RoomUserID uuid.UUID // 對應 room_users 參賽記錄

	TypedText     string // 已正確輸入的目標文字前綴，競賽中長度單調遞增
	Mistakes      int
	LastIsMistake bool // 抑制同一位置持續打錯的重複計數
	Progress      float64
	Status        PlayerStatus
	Connected     bool
	Keystrokes    []Keystroke

	Out *Outbound
}

// applyStroke 套用一次評分結果。呼叫者必須持有房間寫鎖。
func (p *Player) applyStroke(outcome StrokeOutcome, key string, now time.Time) {
	switch {
	case outcome.Correct:
		p.TypedText += key
		p.LastIsMistake = false
		p.Keystrokes = append(p.Keystrokes, Keystroke{
			Key:       key,
			Timestamp: now,
		})
	case outcome.NewMistake:
		p.LastIsMistake = true
		p.Mistakes++
		p.Keystrokes = append(p.Keystrokes, Keystroke{
			Key:       key,
			Mistake:   true,
			Expected:  outcome.Expected,
			Timestamp: now,
		})
	default:
		// 持續打錯：附加到最近一筆記錄，不增加錯誤計數
		if n := len(p.Keystrokes); n > 0 {
			p.Keystrokes[n-1].Key += key
		}
	}
}

// stats 轉換為廣播用的快照
func (p *Player) stats() PlayerStats {
	return PlayerStats{
		Username: p.Username,
		Mistakes: p.Mistakes,
		Progress: p.Progress,
		Status:   p.Status,
	}
}

// Room 一場比賽：目標文字、玩家集合與生命週期旗標
type Room struct {
	ID         uuid.UUID
	Text       Text
	Dictionary Dictionary
	Players    map[uuid.UUID]*Player // user ID -> Player，玩家為房間獨佔持有
	Started    bool
	StartTime  time.Time

	Mu sync.RWMutex

	startCh   chan struct{} // 關閉一次 = 開始訊號翻轉
	startOnce sync.Once
	starting  bool          // 倒數已排程，拒絕重複開始
	done      chan struct{} // 房間自註冊表移除時關閉，喚醒等待者
	doneOnce  sync.Once
}

// NewRoom 建立房間，開始訊號處於閒置狀態
func NewRoom(id uuid.UUID, text Text, dictionary Dictionary) *Room {
	return &Room{
		ID:         id,
		Text:       text,
		Dictionary: dictionary,
		Players:    make(map[uuid.UUID]*Player),
		startCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// signalStart 翻轉開始訊號，整個生命週期恰好一次
func (r *Room) signalStart() {
	r.startOnce.Do(func() {
		close(r.startCh)
	})
}

// markRemoved 標記房間已自註冊表移除，喚醒所有 WaitForStart 的等待者
func (r *Room) markRemoved() {
	r.doneOnce.Do(func() {
		close(r.done)
	})
}

// WaitForStart 阻塞直到開始訊號翻轉或房間被移除。
// 協作式等待，不輪詢。
func (r *Room) WaitForStart() {
	select {
	case <-r.startCh:
	case <-r.done:
	}
}

// IsStarted 回報比賽是否已開始
func (r *Room) IsStarted() bool {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.Started
}

// PlayerCount 回傳玩家數量
func (r *Room) PlayerCount() int {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return len(r.Players)
}

// Snapshot 回傳所有玩家的即時統計快照
func (r *Room) Snapshot() []PlayerStats {
	r.Mu.RLock()
	defer r.Mu.RUnlock()
	return r.snapshotLocked()
}

// snapshotLocked 呼叫者須持有房間鎖
func (r *Room) snapshotLocked() []PlayerStats {
	users := make([]PlayerStats, 0, len(r.Players))
	for _, p := range r.Players {
		users = append(users, p.stats())
	}
	return users
}

// Broadcast 廣播給所有連線中的玩家。
// 只序列化一次；取快照後在鎖外發送，訊息投遞不阻塞並發的按鍵變更。
// 已關閉的握把靜默略過，不重試、不回壓。
func (r *Room) Broadcast(msg any) {
	data := encode(msg)

	r.Mu.RLock()
	outs := make([]*Outbound, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected {
			outs = append(outs, p.Out)
		}
	}
	r.Mu.RUnlock()

	for _, out := range outs {
		out.Send(data)
	}
}

// Unicast 對單一玩家發送；玩家不存在時是 no-op
func (r *Room) Unicast(userID uuid.UUID, msg any) {
	r.Mu.RLock()
	var out *Outbound
	if p, ok := r.Players[userID]; ok {
		out = p.Out
	}
	r.Mu.RUnlock()

	if out != nil {
		out.Send(encode(msg))
	}
}
