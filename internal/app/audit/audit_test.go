package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/glassworks-auth/internal/config"
)

func TestNew_RequiresBroker(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.StorageDriverMemory}
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq url is required")
}
