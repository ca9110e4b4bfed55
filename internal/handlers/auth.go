package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/vmaslov/marksync/internal/middleware"
	"github.com/vmaslov/marksync/internal/models"
	"github.com/vmaslov/marksync/internal/services"
)

// AuthService определяет интерфейс для сервиса аутентификации.
// Это позволит нам легко подменять реализацию (например, для тестов).
type AuthService interface {
	Register(ctx context.Context, username, password string) (string, *models.Session, error)
	Login(ctx context.Context, username, password string) (string, *models.Session, error)
	Logout(ctx context.Context, userID, sessionID string) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

// AuthHandler обрабатывает HTTP-запросы, связанные с аутентификацией.
type AuthHandler struct {
	service AuthService // Зависимость от интерфейса, а не конкретной реализации
	secure  bool        // Выставлять ли флаг Secure у cookie (включено при TLS)
}

// NewAuthHandler создает новый экземпляр AuthHandler.
func NewAuthHandler(s AuthService, secure bool) *AuthHandler {
	return &AuthHandler{service: s, secure: secure}
}

// Register обрабатывает запрос на регистрацию нового пользователя.
// Успешная регистрация сразу открывает сессию и ставит cookie с токеном.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[AuthHandler] Ошибка декодирования запроса регистрации: %v", err)
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}

	// Валидация входных данных (простая)
	if req.Username == "" || req.Password == "" {
		log.Printf("[AuthHandler] Пустое имя пользователя или пароль при регистрации")
		http.Error(w, "Имя пользователя и пароль не могут быть пустыми", http.StatusBadRequest)
		return
	}

	token, session, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			http.Error(w, "Имя пользователя уже занято", http.StatusConflict)
			return
		}
		log.Printf("[AuthHandler] Ошибка регистрации '%s': %v", req.Username, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, token, session)
	w.WriteHeader(http.StatusCreated)
	log.Printf("[AuthHandler] Успешная регистрация пользователя: %s", req.Username)
}

// Login обрабатывает запрос на вход пользователя.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[AuthHandler] Ошибка декодирования запроса входа: %v", err)
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		log.Printf("[AuthHandler] Пустое имя пользователя или пароль при входе")
		http.Error(w, "Имя пользователя и пароль не могут быть пустыми", http.StatusBadRequest)
		return
	}

	token, session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			http.Error(w, "Неверное имя пользователя или пароль", http.StatusUnauthorized)
			return
		}
		log.Printf("[AuthHandler] Ошибка входа '%s': %v", req.Username, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, token, session)
	w.WriteHeader(http.StatusOK)
	log.Printf("[AuthHandler] Успешный вход пользователя: %s", req.Username)
}

// Logout удаляет текущую сессию и сбрасывает cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	sessionID, ok2 := middleware.GetSessionIDFromContext(r.Context())
	if !ok || !ok2 {
		log.Printf("[AuthHandler:Logout] Не удалось получить идентификаторы из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	if err := h.service.Logout(r.Context(), userID, sessionID); err != nil {
		log.Printf("[AuthHandler:Logout] Ошибка выхода пользователя %s: %v", userID, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

// Me возвращает профиль текущего пользователя.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		log.Printf("[AuthHandler:Me] Не удалось получить userID из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		log.Printf("[AuthHandler:Me] Ошибка получения профиля %s: %v", userID, err)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	resp := models.MeResponse{ID: user.ID, Username: user.Username}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[AuthHandler:Me] Ошибка кодирования ответа: %v", err)
	}
}

// setSessionCookie ставит HttpOnly cookie с токеном; Max-Age считается от
// срока жизни сессии.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, session *models.Session) {
	cookie := &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	}
	if session.Expiry != nil {
		cookie.MaxAge = int(time.Until(*session.Expiry).Seconds())
	}
	http.SetCookie(w, cookie)
}

// clearSessionCookie сбрасывает cookie с токеном.
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	})
}
