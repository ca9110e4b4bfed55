package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmaslov/marksync/internal/broker"
	"github.com/vmaslov/marksync/internal/handlers"
)

func TestSetupRouter(t *testing.T) {
	// Тестируем только роутинг, поэтому зависимости обработчиков - nil
	hub := broker.NewHub()
	deps := &dependencies{
		hub:           hub,
		authHandler:   handlers.NewAuthHandler(nil, false),
		syncHandler:   handlers.NewSyncHandler(nil),
		eventsHandler: handlers.NewEventsHandler(hub),
	}

	r := setupRouter(deps, "test-secret")
	require.NotNil(t, r)

	// Проверяем наличие маршрутов
	assert.True(t, hasRoute(r, http.MethodGet, "/ping"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/auth/register"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/auth/login"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/auth/logout"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/me"))
	assert.True(t, hasRoute(r, http.MethodPost, "/api/sync"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/bookmarks"))
	assert.True(t, hasRoute(r, http.MethodGet, "/api/events"))

	t.Run("GET /ping отвечает pong", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pong\n", rec.Body.String())
	})

	t.Run("Приватный маршрут без cookie - 401", func(t *testing.T) {
		// Middleware отклоняет запрос до обращения к репозиторию сессий,
		// поэтому nil-зависимости безопасны.
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Неизвестный маршрут - 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// Вспомогательная функция для проверки наличия маршрута.
func hasRoute(r chi.Router, method, pattern string) bool {
	found := false
	// Игнорируем ошибку от chi.Walk, она используется только для прерывания обхода
	_ = chi.Walk(r, func(m, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if m == method && route == pattern {
			found = true
			return errors.New("found") // Прерываем обход
		}
		return nil
	})
	return found
}

func TestSetupDependencies(t *testing.T) {
	// Сохраняем оригинальные функции и восстанавливаем после тестов
	originalNewPostgresDB := newPostgresDB
	originalRunMigrations := runMigrations
	defer func() {
		newPostgresDB = originalNewPostgresDB
		runMigrations = originalRunMigrations
	}()

	t.Run("Ошибка: Некорректный DatabaseDSN", func(t *testing.T) {
		newPostgresDB = originalNewPostgresDB
		runMigrations = originalRunMigrations
		cfg := &config{
			DatabaseDSN: "невалидный dsn",
		}
		_, err := setupDependencies(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка инициализации БД")
	})

	t.Run("Ошибка миграций закрывает соединение", func(t *testing.T) {
		newPostgresDB = func(_ string) (*sqlx.DB, error) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			mock.ExpectClose()
			return sqlx.NewDb(mockDB, "sqlmock"), nil
		}
		runMigrations = func(_ *sqlx.DB) error {
			return errors.New("миграция не применилась")
		}

		cfg := &config{DatabaseDSN: "dummy-dsn-for-mock"}
		_, err := setupDependencies(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка миграций БД")
	})

	t.Run("Успешное выполнение (без реальной проверки соединений)", func(t *testing.T) {
		newPostgresDB = func(_ string) (*sqlx.DB, error) {
			mockDB, _, err := sqlmock.New()
			require.NoError(t, err)
			return sqlx.NewDb(mockDB, "sqlmock"), nil
		}
		runMigrations = func(_ *sqlx.DB) error { return nil }

		cfg := &config{
			DatabaseDSN: "dummy-dsn-for-mock",
			AuthSecret:  "test-secret",
		}
		deps, err := setupDependencies(cfg)

		require.NoError(t, err)
		require.NotNil(t, deps)
		assert.NotNil(t, deps.db)
		assert.NotNil(t, deps.hub)
		assert.NotNil(t, deps.sessionRepo)
		assert.NotNil(t, deps.authHandler)
		assert.NotNil(t, deps.syncHandler)
		assert.NotNil(t, deps.eventsHandler)

		// Закрываем мок БД
		if deps.db != nil {
			_ = deps.db.Close()
		}
	})
}
