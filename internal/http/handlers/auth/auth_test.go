package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/glassworks-auth/internal/session"
)

func TestDeviceInfo(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("User-Agent", "glassworks-app/2.1")

	info := DeviceInfo(r, "Workshop tablet", "android")
	assert.Equal(t, "Workshop tablet", info.Name)
	assert.Equal(t, "android", info.Platform)
	assert.Equal(t, "glassworks-app/2.1", info.UserAgent)
	assert.Equal(t, "203.0.113.7", info.IP)
}

func TestWriteServiceError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{fmt.Errorf("op: %w", session.ErrDeviceConflict), http.StatusConflict, "DEVICE_CONFLICT", "account is active on another device"},
		{fmt.Errorf("op: %w", session.ErrNotFound), http.StatusNotFound, "NOT_FOUND", "account not found"},
		{errors.New("dial tcp 10.0.0.5:5432: connection refused"), http.StatusInternalServerError, "INTERNAL", "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, httptest.NewRequest(http.MethodPost, "/login", nil), log, "failed", tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantCode, got["code"])
			assert.Equal(t, tt.wantMsg, got["error"])
		})
	}
}

func TestNewValidator_MaxBytes(t *testing.T) {
	type req struct {
		Password string `validate:"maxbytes=72"`
	}
	v := NewValidator()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "ascii at limit", value: strings.Repeat("a", 72)},
		{name: "ascii over limit", value: strings.Repeat("a", 73), wantErr: true},
		{name: "cyrillic at limit", value: strings.Repeat("ж", 36)},
		{name: "cyrillic under rune limit but over byte limit", value: strings.Repeat("ж", 40), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(req{Password: tt.value})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
