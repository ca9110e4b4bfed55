package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vmaslov/marksync/internal/models"
)

// SessionRepository определяет методы для работы с сессиями пользователей.
// Наличие сессии в хранилище — единственный источник истины о ее валидности,
// поэтому Get вызывается на каждом аутентифицированном запросе.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// postgresSessionRepository реализует SessionRepository для PostgreSQL.
type postgresSessionRepository struct {
	db *sqlx.DB
}

// NewPostgresSessionRepository создает новый экземпляр репозитория сессий.
func NewPostgresSessionRepository(db *sqlx.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

// CreateSession сохраняет новую сессию.
func (r *postgresSessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (id, user_id, expiry) VALUES ($1, $2, $3)`

	if _, err := r.db.ExecContext(ctx, query, session.ID, session.UserID, session.Expiry); err != nil {
		log.Printf("[SessionRepo] Ошибка создания сессии для пользователя %s: %v", session.UserID, err)
		return fmt.Errorf("ошибка выполнения запроса на создание сессии: %w", err)
	}

	log.Printf("[SessionRepo] Сессия %s пользователя %s успешно создана", session.ID, session.UserID)
	return nil
}

// GetSession находит сессию по паре (userID, sessionID).
// Истекшая сессия считается отсутствующей: возвращается ErrSessionNotFound.
func (r *postgresSessionRepository) GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	query := `SELECT id, user_id, expiry FROM sessions WHERE id = $1 AND user_id = $2`
	var session models.Session

	err := r.db.GetContext(ctx, &session, query, sessionID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		log.Printf("[SessionRepo] Ошибка при поиске сессии %s пользователя %s: %v", sessionID, userID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение сессии: %w", err)
	}

	if session.IsExpired(time.Now()) {
		log.Printf("[SessionRepo] Сессия %s пользователя %s истекла", sessionID, userID)
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

// DeleteSession удаляет сессию (выход с устройства).
func (r *postgresSessionRepository) DeleteSession(ctx context.Context, userID, sessionID string) error {
	query := `DELETE FROM sessions WHERE id = $1 AND user_id = $2`

	if _, err := r.db.ExecContext(ctx, query, sessionID, userID); err != nil {
		log.Printf("[SessionRepo] Ошибка удаления сессии %s пользователя %s: %v", sessionID, userID, err)
		return fmt.Errorf("ошибка выполнения запроса на удаление сессии: %w", err)
	}

	log.Printf("[SessionRepo] Сессия %s пользователя %s удалена", sessionID, userID)
	return nil
}

// Кастомные ошибки репозитория.
var (
	ErrSessionNotFound = errors.New("сессия не найдена")
)
