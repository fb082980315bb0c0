package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/glassworks-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) SessionHistory(ctx context.Context, accountID string, limit int) ([]models.SessionEvent, error) {
	args := m.Called(ctx, accountID, limit)
	events, _ := args.Get(0).([]models.SessionEvent)
	return events, args.Error(1)
}

func TestHistoryHandler_ServeHTTP(t *testing.T) {
	events := []models.SessionEvent{{
		ID:         "ev-1",
		AccountID:  "acc-1",
		Kind:       models.EventSessionAdmitted,
		DeviceID:   "phoneA",
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}}

	tests := []struct {
		name           string
		accountID      string
		query          string
		callService    bool
		wantLimit      int
		mockEvents     []models.SessionEvent
		mockErr        error
		wantStatusCode int
		wantCode       string
	}{
		{
			name:           "default limit",
			accountID:      "acc-1",
			callService:    true,
			mockEvents:     events,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "explicit limit",
			accountID:      "acc-1",
			query:          "?limit=5",
			callService:    true,
			wantLimit:      5,
			mockEvents:     events,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "bad limit",
			accountID:      "acc-1",
			query:          "?limit=many",
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "BAD_REQUEST",
		},
		{
			name:           "negative limit",
			accountID:      "acc-1",
			query:          "?limit=-1",
			wantStatusCode: http.StatusBadRequest,
			wantCode:       "BAD_REQUEST",
		},
		{
			name:           "storage failure",
			accountID:      "acc-1",
			callService:    true,
			mockErr:        errors.New("pq: connection refused"),
			wantStatusCode: http.StatusInternalServerError,
			wantCode:       "INTERNAL",
		},
		{
			name:           "no account in context",
			wantStatusCode: http.StatusUnauthorized,
			wantCode:       "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authMock := new(AuthServiceMock)
			if tt.callService {
				authMock.On("SessionHistory", mock.Anything, tt.accountID, tt.wantLimit).Return(tt.mockEvents, tt.mockErr).Once()
			}
			handler := New(slog.New(slog.NewTextHandler(io.Discard, nil)), authMock)

			req := httptest.NewRequest(http.MethodGet, "/sessions/events"+tt.query, nil)
			if tt.accountID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.AccountID, tt.accountID))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			if tt.wantStatusCode == http.StatusOK {
				list := got["data"].(map[string]any)["events"].([]any)
				require.Len(t, list, 1)
				assert.Equal(t, "session.admitted", list[0].(map[string]any)["kind"])
			} else {
				assert.Equal(t, tt.wantCode, got["code"])
			}
			authMock.AssertExpectations(t)
		})
	}
}
