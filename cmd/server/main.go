package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/vmaslov/marksync/internal/broker"
	"github.com/vmaslov/marksync/internal/handlers"
	appmiddleware "github.com/vmaslov/marksync/internal/middleware"
	"github.com/vmaslov/marksync/internal/repository"
	"github.com/vmaslov/marksync/internal/services"
)

const (
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 30 * time.Second
)

// Переменные для подмены в тестах.
var (
	newPostgresDB = repository.NewPostgresDB
	runMigrations = repository.RunMigrations
)

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db            *sqlx.DB
	hub           *broker.Hub
	sessionRepo   repository.SessionRepository
	authHandler   *handlers.AuthHandler
	syncHandler   *handlers.SyncHandler
	eventsHandler *handlers.EventsHandler
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	if err := run(); err != nil {
		log.Printf("Ошибка выполнения сервера: %v", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run() error {
	log.Println("Запуск сервера MarkSync...")

	cfg, err := parseFlags()
	if err != nil {
		return fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	// Инициализация зависимостей
	deps, err := setupDependencies(cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	// Отложенное закрытие соединения с БД
	defer func() {
		if deps.db != nil {
			if closeErr := deps.db.Close(); closeErr != nil {
				log.Printf("Ошибка закрытия соединения с БД: %v", closeErr)
			}
		}
	}()

	// Настройка роутера
	r := setupRouter(deps, cfg.AuthSecret)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: defaultReadTimeout,
		IdleTimeout: defaultIdleTimeout,
		// WriteTimeout не задаем: поток событий /api/events живет
		// неограниченно долго и не должен обрываться сервером.
	}

	if cfg.UseTLS() {
		log.Printf("Запуск HTTPS-сервера на порту %s...", cfg.Port)
		err = server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		log.Printf("Запуск HTTP-сервера на порту %s...", cfg.Port)
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка запуска сервера: %w", err)
	}
	return nil
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
func setupDependencies(cfg *config) (*dependencies, error) {
	deps := &dependencies{}
	var err error

	// 1. Подключение к БД и миграции
	deps.db, err = newPostgresDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}
	if err = runMigrations(deps.db); err != nil {
		if dbCloseErr := deps.db.Close(); dbCloseErr != nil {
			log.Printf("Ошибка закрытия соединения с БД при ошибке миграций: %v", dbCloseErr)
		}
		return nil, fmt.Errorf("ошибка миграций БД: %w", err)
	}

	// 2. Шина рассылки — одна на процесс, живет до его завершения
	deps.hub = broker.NewHub()

	// 3. Создание репозиториев
	userRepo := repository.NewPostgresUserRepository(deps.db)
	deps.sessionRepo = repository.NewPostgresSessionRepository(deps.db)
	bookmarkRepo := repository.NewPostgresBookmarkRepository(deps.db)

	// 4. Создание сервисов
	authService := services.NewAuthService(userRepo, deps.sessionRepo, cfg.AuthSecret)
	syncService := services.NewSyncService(bookmarkRepo, deps.hub)

	// 5. Создание обработчиков
	deps.authHandler = handlers.NewAuthHandler(authService, cfg.UseTLS())
	deps.syncHandler = handlers.NewSyncHandler(syncService)
	deps.eventsHandler = handlers.NewEventsHandler(deps.hub)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(deps *dependencies, secret string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	// Определяем базовый маршрут /api
	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты (регистрация, вход)
		r.Post("/auth/register", deps.authHandler.Register)
		r.Post("/auth/login", deps.authHandler.Login)

		// Приватные маршруты (требуют аутентификации)
		r.Group(func(r chi.Router) {
			// Применяем middleware аутентификации ко всей группе
			r.Use(appmiddleware.NewAuthenticator(deps.sessionRepo, secret))

			r.Post("/auth/logout", deps.authHandler.Logout)
			r.Get("/me", deps.authHandler.Me)

			// Синхронизация: push, pull и живой поток событий
			r.Post("/sync", deps.syncHandler.Sync)
			r.Get("/bookmarks", deps.syncHandler.Bootstrap)
			r.Get("/events", deps.eventsHandler.Stream)
		})
	})
	return r
}
