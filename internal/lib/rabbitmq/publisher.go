package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

// PublishMessage публикует сообщение в RabbitMQ в виде JSON.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SessionPublisher публикует события сессий, используя тип события как ключ маршрутизации.
type SessionPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

// NewSessionPublisher создаёт публикатор поверх открытого канала.
func NewSessionPublisher(ch *amqp.Channel, exchange string) *SessionPublisher {
	return &SessionPublisher{ch: ch, exchange: exchange}
}

// PublishSessionEvent публикует событие. Канал AMQP не рассчитан на конкурентную запись, поэтому вызовы сериализуются.
func (p *SessionPublisher) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	const op = "rabbitmq.PublishSessionEvent"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := PublishMessage(p.ch, p.exchange, event.Kind, event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
