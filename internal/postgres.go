package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore 以 pgxpool 實作 Store。
// 每個方法都是單一語句，連線由池管理，不需要顯式交易。
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 建立 PostgreSQL 持久層
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateRoom 建立房間記錄
func (s *PostgresStore) CreateRoom(ctx context.Context, record RoomRecord) error {
	query := `
		INSERT INTO rooms (id, text_id, created_at)
		VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, query, record.ID, record.TextID, record.CreatedAt); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// SetRoomStarted 標記房間起跑時刻
func (s *PostgresStore) SetRoomStarted(ctx context.Context, roomID uuid.UUID, startedAt time.Time) error {
	query := `UPDATE rooms SET started_at = $2 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, roomID, startedAt); err != nil {
		return fmt.Errorf("set room started: %w", err)
	}
	return nil
}

// SetRoomEnded 標記房間結束時刻
func (s *PostgresStore) SetRoomEnded(ctx context.Context, roomID uuid.UUID, endedAt time.Time) error {
	query := `UPDATE rooms SET ended_at = $2 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, roomID, endedAt); err != nil {
		return fmt.Errorf("set room ended: %w", err)
	}
	return nil
}

// CreateRoomUser 建立參賽記錄
func (s *PostgresStore) CreateRoomUser(ctx context.Context, record RoomUserRecord) error {
	query := `
		INSERT INTO room_users (id, room_id, user_id, joined_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, query,
		record.ID, record.RoomID, record.UserID, record.JoinedAt); err != nil {
		return fmt.Errorf("create room user: %w", err)
	}
	return nil
}

// SetRoomUserLeft 標記玩家離場時刻
func (s *PostgresStore) SetRoomUserLeft(ctx context.Context, roomUserID uuid.UUID, leftAt time.Time) error {
	query := `UPDATE room_users SET left_at = $2 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, roomUserID, leftAt); err != nil {
		return fmt.Errorf("set room user left: %w", err)
	}
	return nil
}

// InsertResult 寫入完賽成績，按鍵軌跡序列化為 JSONB
func (s *PostgresStore) InsertResult(ctx context.Context, record ResultRecord) error {
	keystrokes, err := json.Marshal(record.Keystrokes)
	if err != nil {
		return fmt.Errorf("marshal keystrokes: %w", err)
	}

	query := `
		INSERT INTO results (id, room_user_id, start_time, end_time, mistakes, wpm, cpm, keystrokes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := s.pool.Exec(ctx, query,
		record.ID, record.RoomUserID,
		record.StartTime, record.EndTime,
		record.Mistakes, record.WPM, record.CPM,
		keystrokes); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// DictionaryByID 依 ID 取得題庫
func (s *PostgresStore) DictionaryByID(ctx context.Context, id uuid.UUID) (Dictionary, error) {
	query := `SELECT id, name FROM dictionaries WHERE id = $1`

	var dict Dictionary
	err := s.pool.QueryRow(ctx, query, id).Scan(&dict.ID, &dict.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dictionary{}, fmt.Errorf("dictionary %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Dictionary{}, fmt.Errorf("get dictionary: %w", err)
	}
	return dict, nil
}

// DefaultDictionary 取最早建立的題庫作為預設
func (s *PostgresStore) DefaultDictionary(ctx context.Context) (Dictionary, error) {
	query := `SELECT id, name FROM dictionaries ORDER BY created_at LIMIT 1`

	var dict Dictionary
	err := s.pool.QueryRow(ctx, query).Scan(&dict.ID, &dict.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dictionary{}, fmt.Errorf("default dictionary: %w", ErrNotFound)
	}
	if err != nil {
		return Dictionary{}, fmt.Errorf("get default dictionary: %w", err)
	}
	return dict, nil
}

// TextByID 依 ID 取得文字
func (s *PostgresStore) TextByID(ctx context.Context, id uuid.UUID) (Text, error) {
	query := `SELECT id, dictionary_id, content FROM texts WHERE id = $1`

	var text Text
	err := s.pool.QueryRow(ctx, query, id).Scan(&text.ID, &text.DictionaryID, &text.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return Text{}, fmt.Errorf("text %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Text{}, fmt.Errorf("get text: %w", err)
	}
	return text, nil
}

// RandomText 自題庫隨機抽一篇文字
func (s *PostgresStore) RandomText(ctx context.Context, dictionaryID uuid.UUID) (Text, error) {
	query := `
		SELECT id, dictionary_id, content
		FROM texts
		WHERE dictionary_id = $1
		ORDER BY random()
		LIMIT 1`

	var text Text
	err := s.pool.QueryRow(ctx, query, dictionaryID).Scan(&text.ID, &text.DictionaryID, &text.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return Text{}, fmt.Errorf("random text for dictionary %s: %w", dictionaryID, ErrNotFound)
	}
	if err != nil {
		return Text{}, fmt.Errorf("get random text: %w", err)
	}
	return text, nil
}
