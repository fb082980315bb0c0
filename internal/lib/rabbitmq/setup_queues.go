package rabbitmq

import "github.com/magabrotheeeer/glassworks-auth/internal/models"

// DefaultExchange — exchange событий сессий.
const DefaultExchange = "sessions"

// AuditQueue — очередь воркера аудита сессий.
const AuditQueue = "sessions.audit"

// QueueConfig описывает очередь и ключи маршрутизации, с которыми она привязана к exchange.
type QueueConfig struct {
	QueueName   string
	RoutingKeys []string
}

// GetSessionQueues возвращает очереди, получающие события сессий.
func GetSessionQueues() []QueueConfig {
	return []QueueConfig{
		{
			QueueName: AuditQueue,
			RoutingKeys: []string{
				models.EventSessionAdmitted,
				models.EventSessionSuperseded,
				models.EventSessionOverridden,
				models.EventSessionCleared,
			},
		},
	}
}
