package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/glassworks-auth/internal/config"
)

func TestApp_RunWithMemoryStorage(t *testing.T) {
	cfg := &config.Config{
		Env:               config.EnvLocal,
		StorageDriver:     config.StorageDriverMemory,
		GRPCHealthAddress: "127.0.0.1:0",
		HTTPServer: config.HTTPServer{
			AddressHTTP: "127.0.0.1:0",
			TimeoutHTTP: time.Second,
			IdleTimeout: time.Second,
		},
		JWTToken:      config.JWTToken{JWTSecretKey: "secret", TokenTTL: time.Hour},
		SessionPolicy: config.SessionPolicy{StaleAfter: 24 * time.Hour, TrialPeriod: 720 * time.Hour},
		RateLimit:     config.RateLimit{RPS: 1, Burst: 5},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := New(context.Background(), cfg, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
