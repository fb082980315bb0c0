package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/glassworks-auth/internal/cache"
	customjwt "github.com/magabrotheeeer/glassworks-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/oauth"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/password"
	"github.com/magabrotheeeer/glassworks-auth/internal/metrics"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
	"github.com/magabrotheeeer/glassworks-auth/internal/storage/inmemory"
)

func init() {
	password.Cost = 4
}

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// Мок для EventPublisher
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *PublisherMock) kinds() []string {
	var kinds []string
	for _, c := range m.Calls {
		kinds = append(kinds, c.Arguments.Get(1).(models.SessionEvent).Kind)
	}
	return kinds
}

// Мок для SessionCache
type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) GetSession(ctx context.Context, accountID string) (*cache.SessionSnapshot, bool, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*cache.SessionSnapshot), args.Bool(1), args.Error(2)
}

func (m *CacheMock) SetSession(ctx context.Context, accountID string, snap *cache.SessionSnapshot) (bool, error) {
	args := m.Called(ctx, accountID, snap)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) InvalidateSession(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

// Мок для oauth.Verifier
type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, idToken string) (*oauth.Identity, error) {
	args := m.Called(ctx, idToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.Identity), args.Error(1)
}

type env struct {
	svc       *services.AuthService
	store     *inmemory.Storage
	maker     *customjwt.MakerImpl
	publisher *PublisherMock
	cache     *CacheMock
	verifier  *VerifierMock
	metrics   *metrics.Metrics
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:     inmemory.New(),
		maker:     customjwt.NewJWTMaker("test-secret", time.Hour),
		publisher: new(PublisherMock),
		cache:     new(CacheMock),
		verifier:  new(VerifierMock),
		metrics:   metrics.New(prometheus.NewRegistry()),
		now:       baseTime,
	}
	e.publisher.On("PublishSessionEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	e.cache.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	e.cache.On("InvalidateSession", mock.Anything, mock.Anything).Return(nil).Maybe()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.svc = services.NewAuthService(e.store, e.maker, session.DefaultPolicy(), log,
		services.WithEventPublisher(e.publisher),
		services.WithSessionCache(e.cache),
		services.WithEventHistory(e.store),
		services.WithVerifier(e.verifier),
		services.WithMetrics(e.metrics),
		services.WithClock(func() time.Time { return e.now }),
	)
	return e
}

func (e *env) register(t *testing.T, email, pw string) *models.Profile {
	t.Helper()
	p, err := e.svc.Register(context.Background(), services.RegisterInput{
		Email: email, Name: "Ivan", BusinessName: "Glass&Co", Password: pw,
	})
	require.NoError(t, err)
	return p
}

func (e *env) login(device string, override bool) (*services.LoginResult, error) {
	return e.svc.Login(context.Background(), services.LoginInput{
		Email: "owner@glass.io", Password: "secret123", DeviceID: device, Override: override,
	})
}

func TestAuthService_Register(t *testing.T) {
	e := newEnv(t)

	p := e.register(t, "  owner@glass.io ", "secret123")
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "owner@glass.io", p.Email)
	assert.Equal(t, models.RoleOwner, p.Role)
	assert.True(t, p.HasPassword)
	assert.False(t, p.EmailVerified)
	assert.Equal(t, models.SubscriptionTrial, p.Subscription.Status)
	assert.Equal(t, baseTime.Add(services.DefaultTrialPeriod), p.Subscription.EndDate)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Registrations))

	_, err := e.svc.Register(context.Background(), services.RegisterInput{Email: "OWNER@glass.io", Password: "x"})
	require.ErrorIs(t, err, services.ErrEmailTaken)
	assert.Equal(t, services.CodeEmailTaken, services.ErrorCode(err))
}

func TestAuthService_Login(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{name: "unknown email", email: "nobody@glass.io", password: "secret123", wantCode: session.CodeNotFound},
		{name: "wrong password", email: "owner@glass.io", password: "wrong", wantCode: session.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.register(t, "owner@glass.io", "secret123")

			_, err := e.svc.Login(context.Background(), services.LoginInput{
				Email: tt.email, Password: tt.password, DeviceID: "phoneA",
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, services.ErrorCode(err))
			e.publisher.AssertNotCalled(t, "PublishSessionEvent", mock.Anything, mock.Anything)
			assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Rejections.WithLabelValues(services.MethodPassword, tt.wantCode)))
		})
	}

	t.Run("success issues device-bound token", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "owner@glass.io", "secret123")

		res, err := e.login("phoneA", false)
		require.NoError(t, err)
		assert.Equal(t, reg.ID, res.Profile.ID)
		assert.True(t, res.Profile.EmailVerified)
		require.NotNil(t, res.Profile.ActiveSession)
		assert.Equal(t, "phoneA", res.Profile.ActiveSession.DeviceID)

		claims, err := e.maker.ParseToken(res.Token)
		require.NoError(t, err)
		assert.Equal(t, reg.ID, claims.AccountID())
		assert.Equal(t, "phoneA", claims.DeviceID)

		assert.Equal(t, []string{models.EventSessionAdmitted}, e.publisher.kinds())
		e.cache.AssertCalled(t, "SetSession", mock.Anything, reg.ID, mock.MatchedBy(func(snap *cache.SessionSnapshot) bool {
			return snap.ActiveSession != nil && snap.ActiveSession.DeviceID == "phoneA" && snap.Version > 1
		}))
		e.cache.AssertNotCalled(t, "InvalidateSession", mock.Anything, mock.Anything)
		assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Admissions.WithLabelValues(services.MethodPassword, "admitted")))
	})
}

func TestAuthService_DeviceConflictAndOverride(t *testing.T) {
	e := newEnv(t)
	e.register(t, "owner@glass.io", "secret123")

	_, err := e.login("phoneA", false)
	require.NoError(t, err)

	e.now = baseTime.Add(2 * time.Hour)
	_, err = e.login("laptopB", false)
	require.ErrorIs(t, err, session.ErrDeviceConflict)
	assert.Equal(t, session.CodeDeviceConflict, services.ErrorCode(err))

	res, err := e.login("laptopB", true)
	require.NoError(t, err)
	assert.Equal(t, "laptopB", res.Profile.ActiveSession.DeviceID)

	last := e.publisher.Calls[len(e.publisher.Calls)-1].Arguments.Get(1).(models.SessionEvent)
	assert.Equal(t, models.EventSessionOverridden, last.Kind)
	assert.Equal(t, "phoneA", last.PreviousDeviceID)
	assert.Equal(t, "laptopB", last.DeviceID)
}

func TestAuthService_StaleSessionSuperseded(t *testing.T) {
	e := newEnv(t)
	e.register(t, "owner@glass.io", "secret123")

	_, err := e.login("phoneA", false)
	require.NoError(t, err)

	e.now = baseTime.Add(25 * time.Hour)
	_, err = e.login("laptopB", false)
	require.NoError(t, err)
	assert.Equal(t, []string{models.EventSessionAdmitted, models.EventSessionSuperseded}, e.publisher.kinds())
}

func TestAuthService_SideChannelFailuresAreIgnored(t *testing.T) {
	e := newEnv(t)
	e.publisher.ExpectedCalls = nil
	e.publisher.On("PublishSessionEvent", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	e.cache.ExpectedCalls = nil
	e.cache.On("SetSession", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	e.cache.On("InvalidateSession", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	e.register(t, "owner@glass.io", "secret123")

	_, err := e.login("phoneA", false)
	require.NoError(t, err)
	require.NoError(t, e.svc.Logout(context.Background(), mustAccountID(t, e)))
	e.cache.AssertCalled(t, "InvalidateSession", mock.Anything, mustAccountID(t, e))
}

func mustAccountID(t *testing.T, e *env) string {
	t.Helper()
	acc, err := e.store.GetAccountByEmail(context.Background(), "owner@glass.io")
	require.NoError(t, err)
	return acc.ID
}

func TestAuthService_Logout(t *testing.T) {
	e := newEnv(t)
	e.register(t, "owner@glass.io", "secret123")
	_, err := e.login("phoneA", false)
	require.NoError(t, err)
	id := mustAccountID(t, e)

	require.NoError(t, e.svc.Logout(context.Background(), id))
	require.NoError(t, e.svc.Logout(context.Background(), id), "logout is idempotent")
	assert.Equal(t, []string{models.EventSessionAdmitted, models.EventSessionCleared}, e.publisher.kinds())
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.Logouts))

	acc, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, acc.ActiveSession)
	require.NotNil(t, acc.PinnedDeviceID, "logout keeps the pinned device")

	err = e.svc.Logout(context.Background(), "missing")
	assert.Equal(t, session.CodeNotFound, services.ErrorCode(err))
}

func TestAuthService_ForceClearSession(t *testing.T) {
	e := newEnv(t)
	e.register(t, "owner@glass.io", "secret123")
	_, err := e.login("phoneA", false)
	require.NoError(t, err)

	err = e.svc.ForceClearSession(context.Background(), services.ForceClearInput{Email: "owner@glass.io", Password: "bad"})
	assert.Equal(t, session.CodeUnauthorized, services.ErrorCode(err))

	err = e.svc.ForceClearSession(context.Background(), services.ForceClearInput{Email: "ghost@glass.io", Password: "secret123"})
	assert.Equal(t, session.CodeNotFound, services.ErrorCode(err))

	require.NoError(t, e.svc.ForceClearSession(context.Background(), services.ForceClearInput{Email: "owner@glass.io", Password: "secret123"}))
	acc, err := e.store.GetAccount(context.Background(), mustAccountID(t, e))
	require.NoError(t, err)
	assert.Nil(t, acc.ActiveSession)
	assert.Nil(t, acc.PinnedDeviceID)

	e.now = baseTime.Add(time.Minute)
	_, err = e.login("laptopB", false)
	require.NoError(t, err, "new device is admitted after force-clear")
}

func TestAuthService_ValidateToken(t *testing.T) {
	t.Run("token of superseded device is rejected", func(t *testing.T) {
		e := newEnv(t)
		e.cache.On("GetSession", mock.Anything, mock.Anything).Return(nil, false, nil)
		e.register(t, "owner@glass.io", "secret123")

		first, err := e.login("phoneA", false)
		require.NoError(t, err)
		info, err := e.svc.ValidateToken(context.Background(), first.Token)
		require.NoError(t, err)
		assert.Equal(t, "phoneA", info.DeviceID)
		assert.Equal(t, models.RoleOwner, info.Role)

		_, err = e.login("laptopB", true)
		require.NoError(t, err)
		_, err = e.svc.ValidateToken(context.Background(), first.Token)
		require.ErrorIs(t, err, session.ErrUnauthorized)
		e.cache.AssertCalled(t, "SetSession", mock.Anything, first.Profile.ID, mock.Anything)
	})

	t.Run("cache hit skips the store", func(t *testing.T) {
		e := newEnv(t)
		token, err := e.maker.GenerateToken("cached-account", models.RoleAdmin, "phoneA")
		require.NoError(t, err)
		e.cache.On("GetSession", mock.Anything, "cached-account").Return(&cache.SessionSnapshot{
			Role:          models.RoleAdmin,
			ActiveSession: &models.ActiveSession{DeviceID: "phoneA"},
		}, true, nil)

		info, err := e.svc.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "cached-account", info.AccountID)
		assert.Equal(t, models.RoleAdmin, info.Role)
	})

	t.Run("token without device skips session check", func(t *testing.T) {
		e := newEnv(t)
		token, err := e.maker.GenerateToken("any-account", models.RoleOwner, "")
		require.NoError(t, err)

		info, err := e.svc.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "any-account", info.AccountID)
		e.cache.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
	})

	t.Run("garbage token", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.ValidateToken(context.Background(), "not-a-jwt")
		require.ErrorIs(t, err, session.ErrUnauthorized)
	})

	t.Run("deleted account", func(t *testing.T) {
		e := newEnv(t)
		e.cache.On("GetSession", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down"))
		token, err := e.maker.GenerateToken("ghost", models.RoleOwner, "phoneA")
		require.NoError(t, err)
		_, err = e.svc.ValidateToken(context.Background(), token)
		require.ErrorIs(t, err, session.ErrUnauthorized)
	})
}

func TestAuthService_GoogleLogin(t *testing.T) {
	identity := &oauth.Identity{Provider: models.ProviderGoogle, Subject: "g-1", Email: "owner@glass.io", Name: "Anna"}

	t.Run("first login creates passwordless account", func(t *testing.T) {
		e := newEnv(t)
		e.verifier.On("Verify", mock.Anything, "id-token").Return(identity, nil)

		res, err := e.svc.GoogleLogin(context.Background(), services.GoogleLoginInput{IDToken: "id-token", DeviceID: "phoneA"})
		require.NoError(t, err)
		assert.False(t, res.Profile.HasPassword)
		assert.True(t, res.Profile.EmailVerified)
		assert.Equal(t, models.ProviderGoogle, res.Profile.LinkedProvider)
		assert.Equal(t, "Anna", res.Profile.Name)

		again, err := e.svc.GoogleLogin(context.Background(), services.GoogleLoginInput{IDToken: "id-token", DeviceID: "phoneA"})
		require.NoError(t, err)
		assert.Equal(t, res.Profile.ID, again.Profile.ID)

		_, err = e.svc.Login(context.Background(), services.LoginInput{Email: "owner@glass.io", Password: "", DeviceID: "phoneA"})
		assert.Equal(t, session.CodeUnauthorized, services.ErrorCode(err), "OAuth-only account has no password")
	})

	t.Run("links existing password account by email", func(t *testing.T) {
		e := newEnv(t)
		reg := e.register(t, "owner@glass.io", "secret123")
		e.verifier.On("Verify", mock.Anything, "id-token").Return(identity, nil)

		res, err := e.svc.GoogleLogin(context.Background(), services.GoogleLoginInput{IDToken: "id-token", DeviceID: "phoneA"})
		require.NoError(t, err)
		assert.Equal(t, reg.ID, res.Profile.ID)
		assert.True(t, res.Profile.HasPassword)
		assert.Equal(t, models.ProviderGoogle, res.Profile.LinkedProvider)
	})

	t.Run("device conflict applies to google login", func(t *testing.T) {
		e := newEnv(t)
		e.register(t, "owner@glass.io", "secret123")
		_, err := e.login("phoneA", false)
		require.NoError(t, err)
		e.verifier.On("Verify", mock.Anything, "id-token").Return(identity, nil)

		_, err = e.svc.GoogleLogin(context.Background(), services.GoogleLoginInput{IDToken: "id-token", DeviceID: "laptopB"})
		require.ErrorIs(t, err, session.ErrDeviceConflict)
	})

	t.Run("rejected token", func(t *testing.T) {
		e := newEnv(t)
		e.verifier.On("Verify", mock.Anything, "bad").Return(nil, oauth.ErrInvalidToken)

		_, err := e.svc.GoogleLogin(context.Background(), services.GoogleLoginInput{IDToken: "bad"})
		assert.Equal(t, session.CodeUnauthorized, services.ErrorCode(err))
	})

	t.Run("not configured", func(t *testing.T) {
		svc := services.NewAuthService(inmemory.New(), customjwt.NewJWTMaker("k", time.Hour),
			session.DefaultPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)))
		_, err := svc.GoogleLogin(context.Background(), services.GoogleLoginInput{IDToken: "x"})
		require.ErrorIs(t, err, services.ErrGoogleDisabled)
		assert.Equal(t, session.CodeInternal, services.ErrorCode(err))
	})
}

func TestAuthService_Profile(t *testing.T) {
	e := newEnv(t)
	reg := e.register(t, "owner@glass.io", "secret123")

	p, err := e.svc.Profile(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Email, p.Email)

	_, err = e.svc.Profile(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestAuthService_SessionHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, e.store.SaveSessionEvent(ctx, models.SessionEvent{
			ID:         fmt.Sprintf("ev-%d", i),
			AccountID:  "acc-1",
			Kind:       models.EventSessionAdmitted,
			DeviceID:   "phoneA",
			OccurredAt: baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name    string
		limit   int
		wantIDs []string
	}{
		{name: "default limit", limit: 0, wantIDs: []string{"ev-2", "ev-1", "ev-0"}},
		{name: "explicit limit", limit: 2, wantIDs: []string{"ev-2", "ev-1"}},
		{name: "limit above max is clamped", limit: services.MaxHistoryLimit + 1, wantIDs: []string{"ev-2", "ev-1", "ev-0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := e.svc.SessionHistory(ctx, "acc-1", tt.limit)
			require.NoError(t, err)
			var ids []string
			for _, ev := range events {
				ids = append(ids, ev.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	t.Run("unknown account has empty history", func(t *testing.T) {
		events, err := e.svc.SessionHistory(ctx, "acc-2", 0)
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("history not configured", func(t *testing.T) {
		svc := services.NewAuthService(inmemory.New(), e.maker, session.DefaultPolicy(),
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		events, err := svc.SessionHistory(ctx, "acc-1", 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
