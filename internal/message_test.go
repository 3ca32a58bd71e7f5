package internal_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/typing-race/internal"
)

// TestDecodeClientMessage 測試客戶端訊息解碼與錯誤分類
func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		validate func(t *testing.T, msg internal.KeystrokeMessage, err error)
	}{
		{
			name:    "valid keystroke",
			payload: `{"type":"Keystroke","key":"a","timestamp":1234}`,
			validate: func(t *testing.T, msg internal.KeystrokeMessage, err error) {
				require.NoError(t, err)
				assert.Equal(t, "a", msg.Key)
				assert.Equal(t, uint64(1234), msg.Timestamp)
			},
		},
		{
			name:    "invalid json is malformed",
			payload: `{not json`,
			validate: func(t *testing.T, msg internal.KeystrokeMessage, err error) {
				assert.ErrorIs(t, err, internal.ErrMalformedMessage)
			},
		},
		{
			name:    "server-only type is unexpected",
			payload: `{"type":"Start","text":"cat"}`,
			validate: func(t *testing.T, msg internal.KeystrokeMessage, err error) {
				assert.ErrorIs(t, err, internal.ErrUnexpectedMessage)
			},
		},
		{
			name:    "unknown type is unexpected",
			payload: `{"type":"Dance"}`,
			validate: func(t *testing.T, msg internal.KeystrokeMessage, err error) {
				assert.ErrorIs(t, err, internal.ErrUnexpectedMessage)
			},
		},
		{
			name:    "missing type is unexpected",
			payload: `{"key":"a"}`,
			validate: func(t *testing.T, msg internal.KeystrokeMessage, err error) {
				assert.ErrorIs(t, err, internal.ErrUnexpectedMessage)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := internal.DecodeClientMessage([]byte(tt.payload))
			tt.validate(t, msg, err)
		})
	}
}

// TestMessageEncoding 測試服務器端訊息的信封格式
func TestMessageEncoding(t *testing.T) {
	t.Run("start message carries text and start time", func(t *testing.T) {
		startTime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		data, err := json.Marshal(internal.NewStartMessage("cat", startTime))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "Start", decoded["type"])
		assert.Equal(t, "cat", decoded["text"])
		assert.Contains(t, decoded["start_time"], "2026-01-02")
	})

	t.Run("update message uses snake_case fields", func(t *testing.T) {
		data, err := json.Marshal(internal.NewUpdateMessage(66.7, 1, 42.5))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "Update", decoded["type"])
		assert.InDelta(t, 66.7, decoded["progress"].(float64), 0.001)
		assert.InDelta(t, 42.5, decoded["speed_wpm"].(float64), 0.001)
	})

	t.Run("finished message carries totals", func(t *testing.T) {
		data, err := json.Marshal(internal.NewFinishedMessage(61234, 2, 95.0, 80.0))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "Finished", decoded["type"])
		assert.InDelta(t, 61234, decoded["total_time_ms"].(float64), 0.001)
		assert.InDelta(t, 95.0, decoded["accuracy"].(float64), 0.001)
	})

	t.Run("user events carry the user id", func(t *testing.T) {
		userID := uuid.New()

		data, err := json.Marshal(internal.NewUserFinishedMessage(userID))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "UserFinished", decoded["type"])
		assert.Equal(t, userID.String(), decoded["user_id"])
	})
}
