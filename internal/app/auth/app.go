// Package auth собирает HTTP-сервис аутентификации: хранилище, кэш сессий,
// публикацию событий, маршруты и gRPC health-сервер.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"google.golang.org/api/option"

	"github.com/magabrotheeeer/glassworks-auth/internal/cache"
	"github.com/magabrotheeeer/glassworks-auth/internal/config"
	"github.com/magabrotheeeer/glassworks-auth/internal/http/middlewarectx"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/oauth"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	"github.com/magabrotheeeer/glassworks-auth/internal/metrics"
	"github.com/magabrotheeeer/glassworks-auth/internal/migrations"
	services "github.com/magabrotheeeer/glassworks-auth/internal/services/auth"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
	"github.com/magabrotheeeer/glassworks-auth/internal/storage"
	"github.com/magabrotheeeer/glassworks-auth/internal/storage/inmemory"
)

const shutdownTimeout = 15 * time.Second

// App — HTTP-сервис аутентификации.
type App struct {
	server  *http.Server
	health  *HealthServer
	logger  *slog.Logger
	closers []func() error
}

// New инициализирует зависимости и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.auth.New"
	app := &App{logger: logger}

	accounts, err := app.openStorage(ctx, cfg)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opts := []services.Option{
		services.WithEventHistory(accounts),
		services.WithMetrics(metrics.New(nil)),
		services.WithTrialPeriod(cfg.SessionPolicy.TrialPeriod),
	}

	if cfg.RedisConnection.AddressRedis != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, redisCache.Close)
		opts = append(opts, services.WithSessionCache(cache.NewSessionCache(redisCache, cfg.RedisConnection.SessionTTL)))
		logger.Info("session cache enabled", slog.String("address", cfg.RedisConnection.AddressRedis))
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, conn.Close)
		ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.GetSessionQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, ch.Close)
		opts = append(opts, services.WithEventPublisher(rabbitmq.NewSessionPublisher(ch, cfg.RabbitMQ.Exchange)))
		logger.Info("session events publishing enabled", slog.String("exchange", cfg.RabbitMQ.Exchange))
	}

	googleEnabled := cfg.GoogleOAuth.ClientID != ""
	if googleEnabled {
		verifier, err := oauth.NewGoogleVerifier(ctx, cfg.GoogleOAuth.ClientID,
			option.WithHTTPClient(&http.Client{Timeout: cfg.GoogleOAuth.Timeout}))
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, services.WithVerifier(verifier))
	}

	trusted, err := cfg.RateLimit.TrustedProxyPrefixes()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	policy := session.Policy{
		StaleAfter:         cfg.SessionPolicy.StaleAfter,
		VerifyEmailOnLogin: cfg.SessionPolicy.VerifyEmailOnLogin(),
	}
	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	authService := services.NewAuthService(accounts, jwtMaker, policy, logger, opts...)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, authService,
		middlewarectx.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, trusted...), googleEnabled)

	healthSrv, err := NewHealthServer(cfg.GRPCHealthAddress)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.health = healthSrv

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return app, nil
}

// accountStore — хранилище учётных записей вместе с журналом событий сессий.
type accountStore interface {
	services.AccountRepository
	services.EventHistory
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (accountStore, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return inmemory.New(), nil
	}

	db, err := storage.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	if err = db.CheckDatabaseReady(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Run запускает HTTP и gRPC health серверы и блокируется до отмены ctx или ошибки.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("gRPC health server starting on", slog.String("address", a.health.Addr()))
		if err := a.health.Serve(); err != nil {
			errCh <- fmt.Errorf("grpc health: %w", err)
		}
	}()

	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()
	a.health.SetServing(true)

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	a.logger.Info("shutting down HTTP server gracefully")
	a.health.SetServing(false)
	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(timeoutCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.health.Stop()
	a.close()
	return runErr
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", sl.Err(err))
		}
	}
	a.closers = nil
}
