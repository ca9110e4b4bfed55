package models

import "time"

// Session представляет аутентифицированный контекст устройства/браузера.
// Создается при входе или регистрации, удаляется при явном выходе.
// Наличие записи в хранилище — единственный источник истины о валидности:
// структурно корректного подписанного токена самого по себе недостаточно.
type Session struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`
	// Expiry — абсолютное время истечения; nil означает бессрочную сессию.
	Expiry *time.Time `db:"expiry" json:"expiry,omitempty"`
}

// IsExpired сообщает, истекла ли сессия на момент now.
func (s *Session) IsExpired(now time.Time) bool {
	return s.Expiry != nil && !s.Expiry.After(now)
}
