package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vmaslov/marksync/internal/repository"
)

// Тип для ключа контекста.
type contextKey string

// Ключи для хранения идентификаторов в контексте запроса.
const (
	UserIDKey    contextKey = "userID"
	SessionIDKey contextKey = "sessionID"
)

// Имя cookie с токеном аутентификации.
const SessionCookieName = "auth"

// Структура для пользовательских данных в токене (claims) - должна
// совпадать с той, что в services.
type authClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// NewAuthenticator возвращает middleware аутентификации.
//
// Порядок проверки: cookie -> подпись токена -> запись сессии в хранилище.
// Последний шаг обязателен: корректно подписанный токен с удаленной или
// истекшей сессией отклоняется. До успешной проверки ни один обработчик
// не выполняется.
func NewAuthenticator(sessions repository.SessionRepository, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				log.Println("[AuthMiddleware] Cookie с токеном отсутствует")
				http.Error(w, "Требуется аутентификация", http.StatusUnauthorized)
				return
			}

			// Парсим и валидируем токен
			claims := &authClaims{}
			token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
				// Убеждаемся, что метод подписи - HS256
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				log.Printf("[AuthMiddleware] Невалидный токен: %v", err)
				http.Error(w, "Невалидный токен", http.StatusUnauthorized)
				return
			}
			if claims.UserID == "" || claims.SessionID == "" {
				log.Println("[AuthMiddleware] В токене нет идентификаторов пользователя/сессии")
				http.Error(w, "Невалидный токен", http.StatusUnauthorized)
				return
			}

			// Токен структурно корректен, но истиной владеет хранилище сессий
			_, err = sessions.GetSession(r.Context(), claims.UserID, claims.SessionID)
			if err != nil {
				if errors.Is(err, repository.ErrSessionNotFound) {
					log.Printf("[AuthMiddleware] Сессия %s пользователя %s не найдена или истекла",
						claims.SessionID, claims.UserID)
					http.Error(w, "Сессия недействительна", http.StatusUnauthorized)
					return
				}
				log.Printf("[AuthMiddleware] Ошибка проверки сессии: %v", err)
				http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
				return
			}

			// Добавляем идентификаторы в контекст запроса
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, claims.SessionID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext извлекает UserID из контекста запроса.
// Возвращает ID пользователя и true, если ID найден, иначе "" и false.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetSessionIDFromContext извлекает SessionID из контекста запроса.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(string)
	return sessionID, ok
}
