package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 客戶端與服務器之間的訊息協定：
// 帶 "type" 標籤的 JSON 聯合類型，雙向共用同一個信封格式。
// 服務器端對非預期的訊息類型回覆 Error，而非默默忽略。

// 訊息類型標籤
const (
	TypeStart        = "Start"
	TypeKeystroke    = "Keystroke"
	TypeUpdate       = "Update"
	TypeFinished     = "Finished"
	TypeUserLeft     = "UserLeft"
	TypeUserFinished = "UserFinished"
	TypeRoomUpdate   = "RoomUpdate"
	TypeError        = "Error"
)

// 解碼錯誤分類：格式錯誤與「格式正確但不允許客戶端送出」要分開回覆
var (
	// ErrMalformedMessage 訊息無法解析
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnexpectedMessage 訊息格式正確，但不是客戶端允許送出的類型
	ErrUnexpectedMessage = errors.New("unexpected message type")
)

// PlayerStats 廣播用的玩家即時狀態快照
type PlayerStats struct {
	Username string       `json:"username"`
	Mistakes int          `json:"mistakes"`
	Progress float64      `json:"progress"`
	Status   PlayerStatus `json:"status"`
}

// StartMessage 倒數結束時間確定後廣播一次
type StartMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	StartTime time.Time `json:"start_time"`
}

// KeystrokeMessage 客戶端每輸入一個字元送出一次。
// 注意：連續打錯時客戶端可能把多個字元合併在同一個 key 裡送出。
type KeystrokeMessage struct {
	Type      string `json:"type"`
	Key       string `json:"key"`
	Timestamp uint64 `json:"timestamp"`
}

// UpdateMessage 每次按鍵處理後單播給輸入的玩家
type UpdateMessage struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress"`
	Mistakes int     `json:"mistakes"`
	SpeedWPM float64 `json:"speed_wpm"`
}

// FinishedMessage 玩家完賽時單播，每位玩家恰好一次
type FinishedMessage struct {
	Type        string  `json:"type"`
	TotalTimeMS uint64  `json:"total_time_ms"`
	Mistakes    int     `json:"mistakes"`
	Accuracy    float64 `json:"accuracy"`
	SpeedWPM    float64 `json:"speed_wpm"`
}

// UserLeftMessage 玩家離線時廣播
type UserLeftMessage struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

// UserFinishedMessage 玩家完賽時廣播給全房間
type UserFinishedMessage struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

// RoomUpdateMessage 房間名單與即時統計
type RoomUpdateMessage struct {
	Type  string        `json:"type"`
	Users []PlayerStats `json:"users"`
}

// ErrorMessage 對格式錯誤或非預期的輸入單播回覆
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewStartMessage(text string, startTime time.Time) StartMessage {
	return StartMessage{Type: TypeStart, Text: text, StartTime: startTime}
}

func NewUpdateMessage(progress float64, mistakes int, speedWPM float64) UpdateMessage {
	return UpdateMessage{Type: TypeUpdate, Progress: progress, Mistakes: mistakes, SpeedWPM: speedWPM}
}

func NewFinishedMessage(totalTimeMS uint64, mistakes int, accuracy, speedWPM float64) FinishedMessage {
	return FinishedMessage{
		Type:        TypeFinished,
		TotalTimeMS: totalTimeMS,
		Mistakes:    mistakes,
		Accuracy:    accuracy,
		SpeedWPM:    speedWPM,
	}
}

func NewUserLeftMessage(userID uuid.UUID) UserLeftMessage {
	return UserLeftMessage{Type: TypeUserLeft, UserID: userID}
}

func NewUserFinishedMessage(userID uuid.UUID) UserFinishedMessage {
	return UserFinishedMessage{Type: TypeUserFinished, UserID: userID}
}

func NewRoomUpdateMessage(users []PlayerStats) RoomUpdateMessage {
	return RoomUpdateMessage{Type: TypeRoomUpdate, Users: users}
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// DecodeClientMessage 解析客戶端訊息。
// 目前客戶端唯一允許送出的類型是 Keystroke；
// 其餘類型回傳 ErrUnexpectedMessage，無法解析回傳 ErrMalformedMessage。
func DecodeClientMessage(data []byte) (KeystrokeMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return KeystrokeMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if envelope.Type != TypeKeystroke {
		return KeystrokeMessage{}, fmt.Errorf("%w: %q", ErrUnexpectedMessage, envelope.Type)
	}

	var msg KeystrokeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return KeystrokeMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// encode 序列化訊息；廣播前只序列化一次，所有接收者共用同一份位元組。
// 訊息皆為本套件定義的結構，序列化不會失敗。
func encode(msg any) []byte {
	data, _ := json.Marshal(msg)
	return data
}
