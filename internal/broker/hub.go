// Package broker реализует внутрипроцессную шину рассылки принятых изменений
// всем живым подписчикам (открытым стримам событий).
package broker

import (
	"log"
	"sync"

	"github.com/vmaslov/marksync/internal/models"
)

// Емкость буфера одного подписчика. При переполнении вытесняется самое
// старое непрочитанное сообщение: доставка best-effort, отставший клиент
// восстановит пропущенное через инкрементальный pull.
const subscriberBufferSize = 64

// Subscriber — независимая позиция чтения в шине.
// Канал закрывается при Unsubscribe.
type Subscriber struct {
	ch chan models.SyncMessage
}

// C возвращает канал входящих сообщений подписчика.
func (s *Subscriber) C() <-chan models.SyncMessage {
	return s.ch
}

// Hub — единственный на процесс примитив fan-out, общий для всех
// пользователей. Авторизацией не занимается: фильтрация по user_id
// выполняется на стороне потребителя. Долговременного состояния не хранит —
// недоставленные сообщения теряются при рестарте, это допустимо, поскольку
// pull-путь всегда доступен переподключившемуся клиенту.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// NewHub создает новую шину рассылки.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe регистрирует нового подписчика. Подписчик видит только
// сообщения, опубликованные после подписки.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ch: make(chan models.SyncMessage, subscriberBufferSize),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	total := len(h.subs)
	h.mu.Unlock()

	log.Printf("[Hub] Новый подписчик (всего: %d)", total)
	return sub
}

// Unsubscribe снимает подписчика с учета и закрывает его канал.
// Повторный вызов для уже снятого подписчика безопасен.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	total := len(h.subs)
	h.mu.Unlock()

	log.Printf("[Hub] Подписчик отключен (всего: %d)", total)
}

// Publish рассылает сообщение всем текущим подписчикам. Никогда не блокирует
// вызывающего и не возвращает ошибку: без подписчиков сообщение просто
// пропадает, при заполненном буфере вытесняется самое старое.
func (h *Hub) Publish(msg models.SyncMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			// Буфер полон: освобождаем место, выбрасывая самое старое
			// сообщение. Если потребитель успел вычитать его сам — вторая
			// попытка отправки тем более пройдет.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
}
