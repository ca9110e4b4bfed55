package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vmaslov/marksync/internal/models"
)

// BookmarkRepository определяет методы для работы с закладками пользователей.
//
// Upsert и BulkUpsert — "слепая" перезапись: хранилище НЕ сравнивает
// updated_at входящей записи с сохраненной. Порядок применения — зона
// ответственности вызывающего (политика last-write-wins реализуется
// координатором синхронизации, который доверяет клиентскому updated_at).
type BookmarkRepository interface {
	Upsert(ctx context.Context, userID string, bookmark *models.Bookmark) error
	BulkUpsert(ctx context.Context, userID string, bookmarks []models.Bookmark) error
	RangeRead(ctx context.Context, userID string, since time.Time, cursor string, limit int) ([]models.Bookmark, string, error)
}

// postgresBookmarkRepository реализует BookmarkRepository для PostgreSQL.
type postgresBookmarkRepository struct {
	db *sqlx.DB
}

// NewPostgresBookmarkRepository создает новый экземпляр репозитория закладок.
func NewPostgresBookmarkRepository(db *sqlx.DB) BookmarkRepository {
	return &postgresBookmarkRepository{db: db}
}

// created_at пишется только при вставке; при конфликте обновляются только
// изменяемые поля. Tombstone (deleted_at) распространяется тем же путем,
// что и обычная правка.
const upsertBookmarkQuery = `
	INSERT INTO bookmarks (user_id, id, client_id, title, url, created_at, updated_at, deleted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (user_id, id) DO UPDATE SET
		title      = EXCLUDED.title,
		url        = EXCLUDED.url,
		updated_at = EXCLUDED.updated_at,
		deleted_at = EXCLUDED.deleted_at`

// Upsert идемпотентно записывает одну закладку.
func (r *postgresBookmarkRepository) Upsert(ctx context.Context, userID string, bookmark *models.Bookmark) error {
	_, err := r.db.ExecContext(ctx, upsertBookmarkQuery,
		userID, bookmark.ID, bookmark.ClientID, bookmark.Title, bookmark.URL,
		bookmark.CreatedAt, bookmark.UpdatedAt, bookmark.DeletedAt)
	if err != nil {
		log.Printf("[BookmarkRepo] Ошибка upsert закладки '%s' пользователя %s: %v", bookmark.ID, userID, err)
		return fmt.Errorf("ошибка выполнения запроса upsert закладки: %w", err)
	}

	return nil
}

// BulkUpsert применяет пакет закладок атомарно, в одной транзакции.
// Пустой пакет — no-op, завершающийся успехом. При любой ошибке транзакция
// откатывается целиком: частично примененных пакетов не бывает.
func (r *postgresBookmarkRepository) BulkUpsert(ctx context.Context, userID string, bookmarks []models.Bookmark) error {
	if len(bookmarks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		log.Printf("[BookmarkRepo] Ошибка начала транзакции для пользователя %s: %v", userID, err)
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откат безопасен и после успешного Commit (вернет sql.ErrTxDone)
	defer func() { _ = tx.Rollback() }()

	for i := range bookmarks {
		b := &bookmarks[i]
		if _, err = tx.ExecContext(ctx, upsertBookmarkQuery,
			userID, b.ID, b.ClientID, b.Title, b.URL,
			b.CreatedAt, b.UpdatedAt, b.DeletedAt); err != nil {
			log.Printf("[BookmarkRepo] Ошибка upsert закладки '%s' в пакете пользователя %s: %v", b.ID, userID, err)
			return fmt.Errorf("ошибка выполнения пакетного upsert: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[BookmarkRepo] Ошибка фиксации транзакции для пользователя %s: %v", userID, err)
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	log.Printf("[BookmarkRepo] Пакет из %d закладок пользователя %s успешно применен", len(bookmarks), userID)
	return nil
}

// RangeRead возвращает страницу закладок с updated_at > since, упорядоченную
// по id по возрастанию, строго после cursor (если задан), не более limit
// строк. Вторым значением возвращается курсор следующей страницы: id
// последней строки, если страница заполнена целиком, иначе пустая строка
// ("страница финальная для данного since").
//
// Курсор привязан к id, а не к updated_at: граница страницы не является
// границей по времени, поэтому запись, измененная во время обхода, может не
// попасть в текущий обход — ее подберет следующий инкрементальный pull.
func (r *postgresBookmarkRepository) RangeRead(ctx context.Context, userID string, since time.Time, cursor string, limit int) ([]models.Bookmark, string, error) {
	query := `SELECT id, client_id, title, url, created_at, updated_at, deleted_at
	          FROM bookmarks
	          WHERE user_id = $1 AND updated_at > $2`
	args := []interface{}{userID, since}

	if cursor != "" {
		query += ` AND id > $3 ORDER BY id ASC LIMIT $4`
		args = append(args, cursor, limit)
	} else {
		query += ` ORDER BY id ASC LIMIT $3`
		args = append(args, limit)
	}

	bookmarks := make([]models.Bookmark, 0, limit)
	if err := r.db.SelectContext(ctx, &bookmarks, query, args...); err != nil {
		log.Printf("[BookmarkRepo] Ошибка выборки закладок пользователя %s: %v", userID, err)
		return nil, "", fmt.Errorf("ошибка выполнения запроса выборки закладок: %w", err)
	}

	nextCursor := ""
	if len(bookmarks) == limit {
		nextCursor = bookmarks[len(bookmarks)-1].ID
	}

	return bookmarks, nextCursor, nil
}
