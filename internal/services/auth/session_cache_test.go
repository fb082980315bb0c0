package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/glassworks-auth/internal/cache"
	"github.com/magabrotheeeer/glassworks-auth/internal/config"
	customjwt "github.com/magabrotheeeer/glassworks-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
	"github.com/magabrotheeeer/glassworks-auth/internal/storage/inmemory"
)

// interleavingStore выполняет afterGet один раз, между чтением записи и возвратом результата.
type interleavingStore struct {
	*inmemory.Storage
	afterGet func()
}

func (s *interleavingStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	acc, err := s.Storage.GetAccount(ctx, accountID)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook()
	}
	return acc, err
}

func TestAuthService_StaleCacheFillCannotReviveEvictedDevice(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisCache, err := cache.InitServer(context.Background(), config.RedisConnection{
		AddressRedis: mr.Addr(),
		DialTimeout:  time.Second,
		TimeoutRedis: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })
	sessions := cache.NewSessionCache(redisCache, 5*time.Minute)

	store := &interleavingStore{Storage: inmemory.New()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewAuthService(store, customjwt.NewJWTMaker("test-secret", time.Hour), session.DefaultPolicy(), log,
		services.WithSessionCache(sessions),
		services.WithClock(func() time.Time { return baseTime }),
	)
	ctx := context.Background()

	_, err = svc.Register(ctx, services.RegisterInput{Email: "owner@glass.io", Name: "Ivan", Password: "secret123"})
	require.NoError(t, err)
	login := func(device string, override bool) *services.LoginResult {
		res, err := svc.Login(ctx, services.LoginInput{
			Email: "owner@glass.io", Password: "secret123", DeviceID: device, Override: override,
		})
		require.NoError(t, err)
		return res
	}

	phone := login("phoneA", false)
	mr.Del("session:" + phone.Profile.ID)

	store.afterGet = func() { login("laptopB", true) }
	_, err = svc.ValidateToken(ctx, phone.Token)
	require.NoError(t, err, "request read the session before the override committed")

	snap, found, err := sessions.GetSession(ctx, phone.Profile.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, snap.ActiveSession)
	assert.Equal(t, "laptopB", snap.ActiveSession.DeviceID)

	_, err = svc.ValidateToken(ctx, phone.Token)
	require.ErrorIs(t, err, session.ErrUnauthorized)
}
