package models

import "time"

// Bookmark представляет одну закладку пользователя — единицу синхронизации.
// ID назначается клиентом при создании и никогда не меняется; уникален в
// рамках коллекции одного пользователя (в БД ключ (user_id, id)).
// Тэги `db` используются для маппинга с полями БД с помощью sqlx.
// Тэги `json` используются для (де)сериализации JSON.
type Bookmark struct {
	ID       string `db:"id" json:"id"`
	ClientID string `db:"client_id" json:"client_id"`
	Title    string `db:"title" json:"title"`
	URL      string `db:"url" json:"url"`
	// CreatedAt выставляется один раз тем, кто первым увидел запись, и
	// при последующих upsert не перезаписывается.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// UpdatedAt — время последней принятой мутации, объявленное клиентом.
	// Единственный критерий разрешения конфликтов (last-write-wins).
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	// DeletedAt помечает мягко удаленную запись (tombstone). Такие записи
	// физически не удаляются и реплицируются как обычные правки.
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// IsDeleted сообщает, является ли запись tombstone'ом.
func (b *Bookmark) IsDeleted() bool {
	return b.DeletedAt != nil
}

// SyncMessage — транзиентное сообщение для рассылки живым подписчикам.
// Никогда не сохраняется; живет только на время доставки.
type SyncMessage struct {
	UserID   string
	Bookmark Bookmark
}
