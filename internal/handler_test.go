package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/typing-race/internal"
	"github.com/koopa0/typing-race/internal/testutils"
)

// newTestHandler 組裝測試用的 HTTP 處理器
func newTestHandler(store *testutils.MockStore) (*internal.Registry, http.Handler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := internal.NewRegistry(store, logger, time.Hour, time.Hour)
	handler := internal.NewHandler(registry, store, logger)
	return registry, handler.Routes()
}

// TestCreateRoomEndpoint 測試建立房間端點
func TestCreateRoomEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		seed     func(store *testutils.MockStore)
		validate func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name: "empty body uses default dictionary",
			body: "",
			seed: func(store *testutils.MockStore) {
				store.SeedDictionary("english-common", "the quick brown fox")
			},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusCreated, rec.Code)

				var resp map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp["room_id"])
				assert.Equal(t, "english-common", resp["dictionary"])
			},
		},
		{
			name: "explicit dictionary id",
			body: "", // 在測試中動態填入
			seed: func(store *testutils.MockStore) {},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusCreated, rec.Code)
			},
		},
		{
			name: "explicit text id",
			body: "", // 在測試中動態填入
			seed: func(store *testutils.MockStore) {},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusCreated, rec.Code)
			},
		},
		{
			name: "unknown text id yields 404",
			body: fmt.Sprintf(`{"text_id":%q}`, uuid.New()),
			seed: func(store *testutils.MockStore) {
				store.SeedDictionary("english-common", "the quick brown fox")
			},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
			},
		},
		{
			name: "no dictionaries yields 404",
			body: "",
			seed: func(store *testutils.MockStore) {},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
			},
		},
		{
			name: "malformed body yields 400",
			body: "{not json",
			seed: func(store *testutils.MockStore) {
				store.SeedDictionary("english-common", "the quick brown fox")
			},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			},
		},
		{
			name: "unknown dictionary id yields 404",
			body: fmt.Sprintf(`{"dictionary_id":%q}`, uuid.New()),
			seed: func(store *testutils.MockStore) {
				store.SeedDictionary("english-common", "the quick brown fox")
			},
			validate: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, rec.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutils.NewMockStore()
			tt.seed(store)
			_, routes := newTestHandler(store)

			body := tt.body
			switch tt.name {
			case "explicit dictionary id":
				dict := store.SeedDictionary("custom", "pack my box")
				body = fmt.Sprintf(`{"dictionary_id":%q}`, dict.ID)
			case "explicit text id":
				dict := store.SeedDictionary("custom", "pack my box")
				text, err := store.RandomText(context.Background(), dict.ID)
				require.NoError(t, err)
				body = fmt.Sprintf(`{"text_id":%q}`, text.ID)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, req)

			tt.validate(t, rec)
		})
	}
}

// TestListRoomsEndpoint 測試房間列表端點
func TestListRoomsEndpoint(t *testing.T) {
	store := testutils.NewMockStore()
	store.SeedDictionary("english-common", "the quick brown fox")
	_, routes := newTestHandler(store)

	// 先建兩間房
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rooms []internal.RoomSummary `json:"rooms"`
		Total int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Rooms, 2)
	assert.Equal(t, "english-common", resp.Rooms[0].Dictionary)
	assert.False(t, resp.Rooms[0].Started)
}

// TestStartRoomEndpoint 測試開始比賽端點的狀態碼
func TestStartRoomEndpoint(t *testing.T) {
	store := testutils.NewMockStore()
	dict := store.SeedDictionary("english-common", "cat")
	registry, routes := newTestHandler(store)

	text, err := store.RandomText(context.Background(), dict.ID)
	require.NoError(t, err)
	roomID := registry.CreateRoom(context.Background(), text, dict)

	t.Run("invalid room id yields 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/not-a-uuid/start", nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown room yields 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/start", uuid.New()), nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("first start succeeds", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/start", roomID), nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("second start yields 409", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/start", roomID), nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// TestHealthEndpoint 測試健康檢查
func TestHealthEndpoint(t *testing.T) {
	store := testutils.NewMockStore()
	_, routes := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
