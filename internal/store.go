package internal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 查無資料
var ErrNotFound = errors.New("record not found")

// Dictionary 題庫：一組可供比賽抽題的文字集合
type Dictionary struct {
	ID   uuid.UUID
	Name string
}

// Text 一篇目標文字
type Text struct {
	ID           uuid.UUID
	DictionaryID uuid.UUID
	Content      string
}

// RoomRecord 房間的持久化記錄
type RoomRecord struct {
	ID        uuid.UUID
	TextID    uuid.UUID
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

// RoomUserRecord 一次參賽記錄：使用者與房間的對應
type RoomUserRecord struct {
	ID       uuid.UUID
	RoomID   uuid.UUID
	UserID   uuid.UUID
	JoinedAt time.Time
	LeftAt   *time.Time
}

// ResultRecord 完賽成績，含完整按鍵軌跡
type ResultRecord struct {
	ID         uuid.UUID
	RoomUserID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Mistakes   int
	WPM        float64
	CPM        float64
	Keystrokes []Keystroke
}

// Store 持久化介面。
//
// 所有寫入都是盡力而為：比賽狀態以記憶體為準，
// 持久化失敗記錄日誌後比賽照常進行（詳見 Registry）。
type Store interface {
	// CreateRoom 建立房間記錄
	CreateRoom(ctx context.Context, record RoomRecord) error
	// SetRoomStarted 標記房間起跑時刻
	SetRoomStarted(ctx context.Context, roomID uuid.UUID, startedAt time.Time) error
	// SetRoomEnded 標記房間結束時刻
	SetRoomEnded(ctx context.Context, roomID uuid.UUID, endedAt time.Time) error

	// CreateRoomUser 建立參賽記錄
	CreateRoomUser(ctx context.Context, record RoomUserRecord) error
	// SetRoomUserLeft 標記玩家離場時刻
	SetRoomUserLeft(ctx context.Context, roomUserID uuid.UUID, leftAt time.Time) error

	// InsertResult 寫入完賽成績，每筆參賽記錄至多一筆
	InsertResult(ctx context.Context, record ResultRecord) error

	// DictionaryByID 依 ID 取得題庫，不存在回傳 ErrNotFound
	DictionaryByID(ctx context.Context, id uuid.UUID) (Dictionary, error)
	// TextByID 依 ID 取得文字，不存在回傳 ErrNotFound
	TextByID(ctx context.Context, id uuid.UUID) (Text, error)
	// DefaultDictionary 取得預設題庫
	DefaultDictionary(ctx context.Context) (Dictionary, error)
	// RandomText 自題庫隨機抽一篇文字，題庫為空回傳 ErrNotFound
	RandomText(ctx context.Context, dictionaryID uuid.UUID) (Text, error)
}
