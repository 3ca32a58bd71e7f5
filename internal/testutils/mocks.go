// Package testutils 提供測試用的共用工具和輔助函數
package testutils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koopa0/typing-race/internal"
)

// MockStore 實作 internal.Store 介面的 mock
type MockStore struct {
	mu           sync.RWMutex
	Rooms        map[uuid.UUID]internal.RoomRecord
	RoomUsers    map[uuid.UUID]internal.RoomUserRecord
	Results      []internal.ResultRecord
	Dictionaries map[uuid.UUID]internal.Dictionary
	Texts        []internal.Text

	// 記錄呼叫次數
	CreateRoomCalls      atomic.Int32
	SetRoomStartedCalls  atomic.Int32
	SetRoomEndedCalls    atomic.Int32
	CreateRoomUserCalls  atomic.Int32
	SetRoomUserLeftCalls atomic.Int32
	InsertResultCalls    atomic.Int32

	// 錯誤注入
	ShouldFailNext bool
	FailError      error
}

// NewMockStore 創建新的 MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		Rooms:        make(map[uuid.UUID]internal.RoomRecord),
		RoomUsers:    make(map[uuid.UUID]internal.RoomUserRecord),
		Dictionaries: make(map[uuid.UUID]internal.Dictionary),
	}
}

// SeedDictionary 預填一個題庫與其文字
func (m *MockStore) SeedDictionary(name string, contents ...string) internal.Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()

	dict := internal.Dictionary{ID: uuid.New(), Name: name}
	m.Dictionaries[dict.ID] = dict
	for _, content := range contents {
		m.Texts = append(m.Texts, internal.Text{
			ID:           uuid.New(),
			DictionaryID: dict.ID,
			Content:      content,
		})
	}
	return dict
}

func (m *MockStore) failNext() error {
	if m.ShouldFailNext {
		m.ShouldFailNext = false
		return m.FailError
	}
	return nil
}

// CreateRoom 實作 Store 的 CreateRoom 方法
func (m *MockStore) CreateRoom(ctx context.Context, record internal.RoomRecord) error {
	m.CreateRoomCalls.Add(1)

	if err := m.failNext(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rooms[record.ID] = record
	return nil
}

// SetRoomStarted 實作 Store 的 SetRoomStarted 方法
func (m *MockStore) SetRoomStarted(ctx context.Context, roomID uuid.UUID, startedAt time.Time) error {
	m.SetRoomStartedCalls.Add(1)

	if err := m.failNext(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.Rooms[roomID]; ok {
		record.StartedAt = &startedAt
		m.Rooms[roomID] = record
	}
	return nil
}

// SetRoomEnded 實作 Store 的 SetRoomEnded 方法
func (m *MockStore) SetRoomEnded(ctx context.Context, roomID uuid.UUID, endedAt time.Time) error {
	m.SetRoomEndedCalls.Add(1)

	if err := m.failNext(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.Rooms[roomID]; ok {
		record.EndedAt = &endedAt
		m.Rooms[roomID] = record
	}
	return nil
}

// CreateRoomUser 實作 Store 的 CreateRoomUser 方法
func (m *MockStore) CreateRoomUser(ctx context.Context, record internal.RoomUserRecord) error {
	m.CreateRoomUserCalls.Add(1)

	if err := m.failNext(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.RoomUsers[record.ID] = record
	return nil
}

// SetRoomUserLeft 實作 Store 的 SetRoomUserLeft 方法
func (m *MockStore) SetRoomUserLeft(ctx context.Context, roomUserID uuid.UUID, leftAt time.Time) error {
	m.SetRoomUserLeftCalls.Add(1)

	if err := m.failNext(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.RoomUsers[roomUserID]; ok {
		record.LeftAt = &leftAt
		m.RoomUsers[roomUserID] = record
	}
	return nil
}

// InsertResult 實作 Store 的 InsertResult 方法
func (m *MockStore) InsertResult(ctx context.Context, record internal.ResultRecord) error {
	m.InsertResultCalls.Add(1)

	if err := m.failNext(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results = append(m.Results, record)
	return nil
}

// DictionaryByID 實作 Store 的 DictionaryByID 方法
func (m *MockStore) DictionaryByID(ctx context.Context, id uuid.UUID) (internal.Dictionary, error) {
	if err := m.failNext(); err != nil {
		return internal.Dictionary{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	dict, ok := m.Dictionaries[id]
	if !ok {
		return internal.Dictionary{}, internal.ErrNotFound
	}
	return dict, nil
}

// DefaultDictionary 實作 Store 的 DefaultDictionary 方法；
// 回傳任一題庫，無題庫時回傳 ErrNotFound
func (m *MockStore) DefaultDictionary(ctx context.Context) (internal.Dictionary, error) {
	if err := m.failNext(); err != nil {
		return internal.Dictionary{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, dict := range m.Dictionaries {
		return dict, nil
	}
	return internal.Dictionary{}, internal.ErrNotFound
}

// TextByID 實作 Store 的 TextByID 方法
func (m *MockStore) TextByID(ctx context.Context, id uuid.UUID) (internal.Text, error) {
	if err := m.failNext(); err != nil {
		return internal.Text{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, text := range m.Texts {
		if text.ID == id {
			return text, nil
		}
	}
	return internal.Text{}, internal.ErrNotFound
}

// RandomText 實作 Store 的 RandomText 方法；
// 為了測試可預期，回傳題庫中第一篇文字而非隨機
func (m *MockStore) RandomText(ctx context.Context, dictionaryID uuid.UUID) (internal.Text, error) {
	if err := m.failNext(); err != nil {
		return internal.Text{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, text := range m.Texts {
		if text.DictionaryID == dictionaryID {
			return text, nil
		}
	}
	return internal.Text{}, internal.ErrNotFound
}

// ResultCount 回傳已寫入的成績筆數
func (m *MockStore) ResultCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Results)
}
