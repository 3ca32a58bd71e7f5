package internal

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Handler HTTP 請求處理器
type Handler struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(registry *Registry, store Store, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 房間管理 API
	mux.HandleFunc("POST /api/v1/rooms", wrap(h.createRoom))
	mux.HandleFunc("GET /api/v1/rooms", wrap(h.listRooms))
	mux.HandleFunc("POST /api/v1/rooms/{room_id}/start", wrap(h.startRoom))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))

	return mux
}

// 請求結構
type createRoomRequest struct {
	DictionaryID *uuid.UUID `json:"dictionary_id,omitempty"`
	TextID       *uuid.UUID `json:"text_id,omitempty"`
}

// createRoom 建立房間：選定題庫、抽題、註冊房間。
// 指定 text_id 時直接採用該篇文字，否則自題庫隨機抽題。
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	// 空請求體等同使用預設題庫
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	if req.TextID != nil {
		text, err := h.store.TextByID(ctx, *req.TextID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				h.errorResponse(w, "文字不存在", http.StatusNotFound)
				return
			}
			h.logger.Error("查詢文字失敗", "text_id", *req.TextID, "error", err)
			h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			return
		}

		dict, err := h.store.DictionaryByID(ctx, text.DictionaryID)
		if err != nil {
			h.logger.Error("查詢題庫失敗", "dictionary_id", text.DictionaryID, "error", err)
			h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			return
		}

		roomID := h.registry.CreateRoom(ctx, text, dict)
		h.jsonResponse(w, map[string]any{
			"room_id":    roomID,
			"dictionary": dict.Name,
		}, http.StatusCreated)
		return
	}

	var (
		dict Dictionary
		err  error
	)
	if req.DictionaryID != nil {
		dict, err = h.store.DictionaryByID(ctx, *req.DictionaryID)
	} else {
		dict, err = h.store.DefaultDictionary(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.errorResponse(w, "題庫不存在", http.StatusNotFound)
			return
		}
		h.logger.Error("查詢題庫失敗", "error", err)
		h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	text, err := h.store.RandomText(ctx, dict.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.errorResponse(w, "題庫沒有可用的文字", http.StatusNotFound)
			return
		}
		h.logger.Error("抽題失敗", "dictionary_id", dict.ID, "error", err)
		h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	roomID := h.registry.CreateRoom(ctx, text, dict)

	h.jsonResponse(w, map[string]any{
		"room_id":    roomID,
		"dictionary": dict.Name,
	}, http.StatusCreated)
}

// listRooms 列出活躍房間
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	summaries := h.registry.ListSummaries()

	h.jsonResponse(w, map[string]any{
		"rooms": summaries,
		"total": len(summaries),
	}, http.StatusOK)
}

// startRoom 觸發比賽倒數
func (h *Handler) startRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("room_id"))
	if err != nil {
		h.errorResponse(w, "無效的房間 ID", http.StatusBadRequest)
		return
	}

	if err := h.registry.StartCountdown(roomID); err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound):
			h.errorResponse(w, "房間不存在", http.StatusNotFound)
		case errors.Is(err, ErrAlreadyStarted):
			h.errorResponse(w, "比賽已經開始", http.StatusConflict)
		default:
			h.logger.Error("開始比賽失敗", "room_id", roomID, "error", err)
			h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		}
		return
	}

	h.jsonResponse(w, map[string]any{
		"success": true,
	}, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
