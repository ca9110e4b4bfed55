package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vmaslov/marksync/internal/models"
	"github.com/vmaslov/marksync/internal/repository"
)

// Время жизни сессии, создаваемой при входе или регистрации.
const sessionTTL = 30 * 24 * time.Hour

// Структура для пользовательских данных в токене (claims) - должна
// совпадать с той, что в middleware. Токен лишь переносит пару
// (user_id, session_id); источником истины о валидности остается
// запись сессии в БД.
type authClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// AuthService определяет интерфейс для сервиса аутентификации.
type AuthService interface {
	Register(ctx context.Context, username, password string) (string, *models.Session, error)
	Login(ctx context.Context, username, password string) (string, *models.Session, error)
	Logout(ctx context.Context, userID, sessionID string) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

// Убедимся, что authService удовлетворяет интерфейсу AuthService.
var _ AuthService = (*authService)(nil)

type authService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	secret      string // Секрет подписи токенов (из конфигурации)
}

// NewAuthService создает новый экземпляр сервиса аутентификации.
func NewAuthService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, secret string) AuthService {
	return &authService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		secret:      secret,
	}
}

// Register регистрирует нового пользователя и сразу открывает ему первую
// сессию (пользователь и сессия создаются в одной транзакции).
// Возвращает подписанный токен и созданную сессию.
func (s *authService) Register(ctx context.Context, username, password string) (string, *models.Session, error) {
	// Хешируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[AuthService] Ошибка хеширования пароля для '%s': %v", username, err)
		return "", nil, errors.New("внутренняя ошибка сервера при хешировании пароля")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hashedPassword),
	}
	session := newSession(user.ID)

	if err = s.userRepo.CreateUserWithSession(ctx, user, session); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			log.Printf("[AuthService] Попытка регистрации с занятым именем: %s", username)
			return "", nil, ErrUsernameTaken
		}
		log.Printf("[AuthService] Непредвиденная ошибка репозитория при регистрации '%s': %v", username, err)
		return "", nil, errors.New("внутренняя ошибка сервера при создании пользователя")
	}

	token, err := s.generateToken(user.ID, session)
	if err != nil {
		log.Printf("[AuthService] Ошибка генерации токена для '%s': %v", username, err)
		return "", nil, errors.New("внутренняя ошибка сервера при генерации токена")
	}

	log.Printf("[AuthService] Пользователь '%s' успешно зарегистрирован", username)
	return token, session, nil
}

// Login аутентифицирует пользователя, создает новую сессию и возвращает
// подписанный токен.
func (s *authService) Login(ctx context.Context, username, password string) (string, *models.Session, error) {
	// Получаем пользователя по имени пользователя
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Printf("[AuthService] Попытка входа несуществующего пользователя: %s", username)
			return "", nil, ErrInvalidCredentials // Общая ошибка для несуществующего пользователя и неверного пароля
		}
		log.Printf("[AuthService] Ошибка репозитория при поиске '%s': %v", username, err)
		return "", nil, errors.New("внутренняя ошибка сервера при поиске пользователя")
	}

	// Сравниваем предоставленный пароль с хешем из базы данных
	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Printf("[AuthService] Неверный пароль для пользователя: %s", username)
		return "", nil, ErrInvalidCredentials // Общая ошибка
	}

	// Каждое устройство получает свою сессию
	session := newSession(user.ID)
	if err = s.sessionRepo.CreateSession(ctx, session); err != nil {
		log.Printf("[AuthService] Ошибка создания сессии для '%s': %v", username, err)
		return "", nil, errors.New("внутренняя ошибка сервера при создании сессии")
	}

	token, err := s.generateToken(user.ID, session)
	if err != nil {
		log.Printf("[AuthService] Ошибка генерации токена для '%s': %v", username, err)
		return "", nil, errors.New("внутренняя ошибка сервера при генерации токена")
	}

	log.Printf("[AuthService] Пользователь '%s' успешно аутентифицирован", username)
	return token, session, nil
}

// Logout удаляет сессию устройства. После этого токен, сколь бы корректно
// он ни был подписан, перестает приниматься.
func (s *authService) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.sessionRepo.DeleteSession(ctx, userID, sessionID); err != nil {
		log.Printf("[AuthService] Ошибка удаления сессии %s пользователя %s: %v", sessionID, userID, err)
		return errors.New("внутренняя ошибка сервера при удалении сессии")
	}

	log.Printf("[AuthService] Пользователь %s вышел (сессия %s)", userID, sessionID)
	return nil
}

// Me возвращает профиль текущего пользователя.
func (s *authService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, repository.ErrUserNotFound
		}
		log.Printf("[AuthService] Ошибка репозитория при получении профиля %s: %v", userID, err)
		return nil, errors.New("внутренняя ошибка сервера при получении профиля")
	}

	return user, nil
}

// newSession создает сессию с новым uuid и стандартным сроком жизни.
func newSession(userID string) *models.Session {
	expiry := time.Now().Add(sessionTTL)
	return &models.Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Expiry: &expiry,
	}
}

// generateToken создает и подписывает токен, несущий пару
// (user_id, session_id). Срок жизни токена совпадает со сроком сессии.
func (s *authService) generateToken(userID string, session *models.Session) (string, error) {
	claims := authClaims{
		UserID:    userID,
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(*session.Expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "marksync-server",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}

	return signedToken, nil
}

// Кастомные ошибки сервиса.
var (
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	ErrUsernameTaken      = errors.New("имя пользователя уже занято")
)
