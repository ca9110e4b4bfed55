package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vmaslov/marksync/internal/handlers"
	"github.com/vmaslov/marksync/internal/models"
	"github.com/vmaslov/marksync/internal/services"
)

// MockSyncService is a mock implementation of SyncService interface.
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Sync(ctx context.Context, userID string, bookmarks []models.Bookmark) error {
	args := m.Called(ctx, userID, bookmarks)
	return args.Error(0)
}

func (m *MockSyncService) Bootstrap(ctx context.Context, userID string, since time.Time, cursor string, limit int) ([]models.Bookmark, string, error) {
	args := m.Called(ctx, userID, since, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]models.Bookmark), args.String(1), args.Error(2) //nolint:errcheck // Acceptable for mocks
}

func TestSyncHandler_Sync(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	batchJSON := fmt.Sprintf(
		`[{"id":"b1","client_id":"d1","title":"x","url":"https://x","created_at":%q,"updated_at":%q}]`,
		now.Format(time.RFC3339), now.Format(time.RFC3339))

	tests := []struct {
		name           string
		body           string
		authenticated  bool
		mockSetup      func(svc *MockSyncService)
		expectedStatus int
	}{
		{
			name:          "Успешное применение пакета",
			body:          batchJSON,
			authenticated: true,
			mockSetup: func(svc *MockSyncService) {
				svc.On("Sync", mock.Anything, "u1", mock.MatchedBy(func(bs []models.Bookmark) bool {
					return len(bs) == 1 && bs[0].ID == "b1" && bs[0].UpdatedAt.Equal(now)
				})).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Невалидный JSON - 400",
			body:           `{не массив`,
			authenticated:  true,
			mockSetup:      func(_ *MockSyncService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:          "Ошибка валидации пакета - 400",
			body:          `[{"id":""}]`,
			authenticated: true,
			mockSetup: func(svc *MockSyncService) {
				svc.On("Sync", mock.Anything, "u1", mock.Anything).
					Return(fmt.Errorf("%w: закладка без id", services.ErrValidation))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:          "Ошибка хранилища - 500",
			body:          batchJSON,
			authenticated: true,
			mockSetup: func(svc *MockSyncService) {
				svc.On("Sync", mock.Anything, "u1", mock.Anything).
					Return(errors.New("db is down"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "Нет userID в контексте - 500",
			body:           batchJSON,
			authenticated:  false,
			mockSetup:      func(_ *MockSyncService) {},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSyncService)
			tt.mockSetup(svc)
			h := handlers.NewSyncHandler(svc)

			var req *http.Request
			if tt.authenticated {
				req = authenticatedRequest(http.MethodPost, "/api/sync", tt.body)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/api/sync", nil)
			}
			rec := httptest.NewRecorder()

			h.Sync(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestSyncHandler_Bootstrap(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Полная страница с курсором", func(t *testing.T) {
		svc := new(MockSyncService)
		records := []models.Bookmark{
			{ID: "b1", Title: "Первая", UpdatedAt: since.Add(time.Hour)},
			{ID: "b2", Title: "Вторая", UpdatedAt: since.Add(2 * time.Hour)},
		}
		svc.On("Bootstrap", mock.Anything, "u1", since, "", 2).Return(records, "b2", nil)
		h := handlers.NewSyncHandler(svc)

		target := "/api/bookmarks?since=" + since.Format(time.RFC3339) + "&limit=2"
		rec := httptest.NewRecorder()
		h.Bootstrap(rec, authenticatedRequest(http.MethodGet, target, ""))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp models.BootstrapResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Records, 2)
		require.NotNil(t, resp.NextCursor)
		assert.Equal(t, "b2", *resp.NextCursor)
	})

	t.Run("Финальная страница без курсора", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Bootstrap", mock.Anything, "u1", since, "b2", 2).
			Return([]models.Bookmark{{ID: "b3"}}, "", nil)
		h := handlers.NewSyncHandler(svc)

		target := "/api/bookmarks?since=" + since.Format(time.RFC3339) + "&cursor=b2&limit=2"
		rec := httptest.NewRecorder()
		h.Bootstrap(rec, authenticatedRequest(http.MethodGet, target, ""))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp models.BootstrapResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Records, 1)
		assert.Nil(t, resp.NextCursor)
	})

	t.Run("Параметры по умолчанию: since - начало эпохи", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Bootstrap", mock.Anything, "u1", time.Time{}, "", 0).
			Return([]models.Bookmark{}, "", nil)
		h := handlers.NewSyncHandler(svc)

		rec := httptest.NewRecorder()
		h.Bootstrap(rec, authenticatedRequest(http.MethodGet, "/api/bookmarks", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp models.BootstrapResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Records)
		assert.Nil(t, resp.NextCursor)
		svc.AssertExpectations(t)
	})

	t.Run("Невалидный since - 400", func(t *testing.T) {
		svc := new(MockSyncService)
		h := handlers.NewSyncHandler(svc)

		rec := httptest.NewRecorder()
		h.Bootstrap(rec, authenticatedRequest(http.MethodGet, "/api/bookmarks?since=yesterday", ""))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Bootstrap")
	})

	t.Run("Невалидный limit - 400", func(t *testing.T) {
		svc := new(MockSyncService)
		h := handlers.NewSyncHandler(svc)

		rec := httptest.NewRecorder()
		h.Bootstrap(rec, authenticatedRequest(http.MethodGet, "/api/bookmarks?limit=many", ""))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Bootstrap")
	})

	t.Run("Ошибка сервиса - 500", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Bootstrap", mock.Anything, "u1", time.Time{}, "", 0).
			Return(nil, "", errors.New("db is down"))
		h := handlers.NewSyncHandler(svc)

		rec := httptest.NewRecorder()
		h.Bootstrap(rec, authenticatedRequest(http.MethodGet, "/api/bookmarks", ""))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
