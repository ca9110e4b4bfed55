package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vmaslov/marksync/internal/models"
	"github.com/vmaslov/marksync/internal/repository"
)

// Параметры пагинации pull-пути.
const (
	defaultBootstrapLimit = 100
	maxBootstrapLimit     = 500
)

// Publisher определяет интерфейс шины рассылки, нужный координатору.
// Реализуется broker.Hub.
type Publisher interface {
	Publish(msg models.SyncMessage)
}

// SyncService определяет интерфейс координатора синхронизации.
type SyncService interface {
	Sync(ctx context.Context, userID string, bookmarks []models.Bookmark) error
	Bootstrap(ctx context.Context, userID string, since time.Time, cursor string, limit int) ([]models.Bookmark, string, error)
}

// Убедимся, что syncService удовлетворяет интерфейсу SyncService.
var _ SyncService = (*syncService)(nil)

// syncService — единственный компонент, решающий, что считать "более новой
// версией": входящая запись всегда замещает сохраненную (last-write-wins по
// клиентскому updated_at, без серверной проверки устаревания).
type syncService struct {
	bookmarkRepo repository.BookmarkRepository
	publisher    Publisher
}

// NewSyncService создает новый экземпляр координатора синхронизации.
func NewSyncService(bookmarkRepo repository.BookmarkRepository, publisher Publisher) SyncService {
	return &syncService{
		bookmarkRepo: bookmarkRepo,
		publisher:    publisher,
	}
}

// Sync применяет пакет клиентских изменений и рассылает их живым сессиям.
//
// Пакет валидируется целиком до первого обращения к хранилищу, применяется
// атомарно (все или ничего) и только после фиксации транзакции публикуется
// в шину — подписчик не может увидеть изменение, которого еще нет в БД.
// При ошибке хранилища не публикуется ни одно сообщение пакета.
// Повторная отправка той же записи с тем же updated_at не меняет состояние
// хранилища, но рассылка при этом все равно происходит: потребители при
// необходимости дедуплицируют по (id, updated_at).
func (s *syncService) Sync(ctx context.Context, userID string, bookmarks []models.Bookmark) error {
	if len(bookmarks) == 0 {
		return nil
	}

	for i := range bookmarks {
		b := &bookmarks[i]
		if b.ID == "" {
			log.Printf("[SyncService] Отклонен пакет пользователя %s: закладка без id", userID)
			return fmt.Errorf("%w: закладка без id", ErrValidation)
		}
		if b.UpdatedAt.IsZero() {
			log.Printf("[SyncService] Отклонен пакет пользователя %s: закладка '%s' без updated_at", userID, b.ID)
			return fmt.Errorf("%w: закладка '%s' без updated_at", ErrValidation, b.ID)
		}
		// created_at выставляет тот, кто первым увидел запись
		if b.CreatedAt.IsZero() {
			b.CreatedAt = b.UpdatedAt
		}
	}

	if err := s.bookmarkRepo.BulkUpsert(ctx, userID, bookmarks); err != nil {
		log.Printf("[SyncService] Ошибка применения пакета пользователя %s: %v", userID, err)
		return fmt.Errorf("ошибка сохранения пакета изменений: %w", err)
	}

	// Запись durable — теперь можно оповещать живые сессии.
	// Порядок публикации повторяет порядок в пакете.
	for i := range bookmarks {
		s.publisher.Publish(models.SyncMessage{
			UserID:   userID,
			Bookmark: bookmarks[i],
		})
	}

	log.Printf("[SyncService] Пакет из %d изменений пользователя %s применен и разослан", len(bookmarks), userID)
	return nil
}

// Bootstrap отдает страницу инкрементальной выгрузки: записи с
// updated_at > since, после cursor, не более limit штук. Пустой результат —
// не ошибка. Клиент повторяет запрос с возвращенным курсором, пока тот не
// станет пустым, после чего сохраняет "сейчас" как новый low-water mark.
func (s *syncService) Bootstrap(ctx context.Context, userID string, since time.Time, cursor string, limit int) ([]models.Bookmark, string, error) {
	if limit <= 0 {
		limit = defaultBootstrapLimit
	}
	if limit > maxBootstrapLimit {
		limit = maxBootstrapLimit
	}

	records, nextCursor, err := s.bookmarkRepo.RangeRead(ctx, userID, since, cursor, limit)
	if err != nil {
		log.Printf("[SyncService] Ошибка выгрузки для пользователя %s: %v", userID, err)
		return nil, "", fmt.Errorf("ошибка чтения закладок: %w", err)
	}

	return records, nextCursor, nil
}

// Кастомные ошибки сервиса.
var (
	ErrValidation = errors.New("некорректные входные данные")
)
