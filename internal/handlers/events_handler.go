package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vmaslov/marksync/internal/broker"
	"github.com/vmaslov/marksync/internal/middleware"
)

// Интервал keep-alive комментариев в SSE-потоке.
const heartbeatInterval = 15 * time.Second

// EventsHandler отдает живой поток изменений (Server-Sent Events).
type EventsHandler struct {
	hub *broker.Hub
}

// NewEventsHandler создает новый экземпляр EventsHandler.
func NewEventsHandler(hub *broker.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream обрабатывает GET запрос на подписку. Каждое принятое изменение
// текущего пользователя отправляется отдельным событием `data:`; сообщения
// других пользователей отфильтровываются здесь, на стороне потребителя —
// сама шина об авторизации ничего не знает. Разрыв соединения клиентом
// снимает подписчика, остальные задачи не затрагиваются.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		log.Printf("[EventsHandler] Не удалось получить userID из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("[EventsHandler] ResponseWriter не поддерживает Flusher")
		http.Error(w, "Стриминг не поддерживается", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	log.Printf("[EventsHandler] Пользователь %s подключился к потоку событий", userID)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[EventsHandler] Пользователь %s отключился от потока событий", userID)
			return

		case msg := <-sub.C():
			// Фильтрация по владельцу: чужие изменения не покидают сервер
			if msg.UserID != userID {
				continue
			}

			payload, err := json.Marshal(msg.Bookmark)
			if err != nil {
				log.Printf("[EventsHandler] Ошибка сериализации события: %v", err)
				continue
			}

			if _, err = fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				log.Printf("[EventsHandler] Ошибка записи события пользователю %s: %v", userID, err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// Комментарий-heartbeat удерживает соединение открытым
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				log.Printf("[EventsHandler] Ошибка отправки heartbeat пользователю %s: %v", userID, err)
				return
			}
			flusher.Flush()
		}
	}
}
