// Package audit собирает воркер аудита сессий: потребитель очереди
// sessions.audit, сохраняющий события в хранилище.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/glassworks-auth/internal/config"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	"github.com/magabrotheeeer/glassworks-auth/internal/migrations"
	auditservice "github.com/magabrotheeeer/glassworks-auth/internal/services/audit"
	"github.com/magabrotheeeer/glassworks-auth/internal/storage"
	"github.com/magabrotheeeer/glassworks-auth/internal/storage/inmemory"
)

// App — воркер аудита.
type App struct {
	conn         *amqp.Connection
	ch           *amqp.Channel
	auditService *auditservice.Service
	closeStore   func() error
	logger       *slog.Logger
}

// New подключается к хранилищу и брокеру.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.audit.New"

	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("%s: rabbitmq url is required", op)
	}

	var (
		store      auditservice.EventStore
		closeStore = func() error { return nil }
	)
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("using in-memory storage, audit events are not persisted")
		store = inmemory.New()
	} else {
		db, err := storage.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		store, closeStore = db, db.Close
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.GetSessionQueues())
	if err != nil {
		_ = conn.Close()
		_ = closeStore()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &App{
		conn:         conn,
		ch:           ch,
		auditService: auditservice.NewService(store, logger),
		closeStore:   closeStore,
		logger:       logger,
	}, nil
}

// Run запускает потребителя и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.AuditQueue, a.logger, a.auditService.HandleSessionEvent)
	if err != nil {
		a.logger.Error("failed to start audit consumer", sl.Err(err))
		return err
	}
	a.logger.Info("audit consumer started", slog.String("queue", rabbitmq.AuditQueue))

	<-ctx.Done()
	a.logger.Info("session audit shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.closeStore(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
