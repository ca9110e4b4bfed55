package models

// BootstrapResponse представляет одну страницу инкрементальной выгрузки.
// NextCursor присутствует, только если страница заполнена целиком и могут
// существовать еще записи; клиент повторяет запрос с этим курсором.
type BootstrapResponse struct {
	Records    []Bookmark `json:"records"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}
