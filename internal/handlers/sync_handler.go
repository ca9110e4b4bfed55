package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/vmaslov/marksync/internal/middleware"
	"github.com/vmaslov/marksync/internal/models"
	"github.com/vmaslov/marksync/internal/services"
)

// SyncService определяет интерфейс координатора синхронизации.
type SyncService interface {
	Sync(ctx context.Context, userID string, bookmarks []models.Bookmark) error
	Bootstrap(ctx context.Context, userID string, since time.Time, cursor string, limit int) ([]models.Bookmark, string, error)
}

// SyncHandler обрабатывает HTTP-запросы push- и pull-путей синхронизации.
type SyncHandler struct {
	service SyncService
}

// NewSyncHandler создает новый экземпляр SyncHandler.
func NewSyncHandler(s SyncService) *SyncHandler {
	return &SyncHandler{service: s}
}

// Sync обрабатывает POST запрос с пакетом клиентских изменений.
// Тело запроса — JSON-массив закладок.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		log.Printf("[SyncHandler:Sync] Не удалось получить userID из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	var bookmarks []models.Bookmark
	if err := json.NewDecoder(r.Body).Decode(&bookmarks); err != nil {
		log.Printf("[SyncHandler:Sync] Ошибка декодирования пакета от пользователя %s: %v", userID, err)
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}

	if err := h.service.Sync(r.Context(), userID, bookmarks); err != nil {
		if errors.Is(err, services.ErrValidation) {
			log.Printf("[SyncHandler:Sync] Невалидный пакет от пользователя %s: %v", userID, err)
			http.Error(w, "Некорректные данные в пакете", http.StatusBadRequest)
			return
		}
		log.Printf("[SyncHandler:Sync] Ошибка применения пакета пользователя %s: %v", userID, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Bootstrap обрабатывает GET запрос инкрементальной выгрузки.
// Параметры: since (RFC3339, по умолчанию — начало эпохи), cursor (id
// последней полученной записи), limit.
func (h *SyncHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		log.Printf("[SyncHandler:Bootstrap] Не удалось получить userID из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			log.Printf("[SyncHandler:Bootstrap] Неверный параметр since '%s': %v", raw, err)
			http.Error(w, "Неверный формат параметра since", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Printf("[SyncHandler:Bootstrap] Неверный параметр limit '%s': %v", raw, err)
			http.Error(w, "Неверный формат параметра limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	cursor := r.URL.Query().Get("cursor")

	records, nextCursor, err := h.service.Bootstrap(r.Context(), userID, since, cursor, limit)
	if err != nil {
		log.Printf("[SyncHandler:Bootstrap] Ошибка выгрузки для пользователя %s: %v", userID, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	resp := models.BootstrapResponse{Records: records}
	if nextCursor != "" {
		resp.NextCursor = &nextCursor
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[SyncHandler:Bootstrap] Ошибка кодирования ответа: %v", err)
	}
}
