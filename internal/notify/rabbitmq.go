package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"pharmapos/m/domain"
)

const (
	ExchangeName = "pharmacy_sales"
	ExchangeType = "topic"
)

type RabbitPublisher struct {
	ch  *amqp.Channel
	log *zap.Logger
}

// Connect dials RabbitMQ and declares the sales exchange, retrying a few
// times to ride out container startup ordering.
func Connect(url string, log *zap.Logger) (*amqp.Connection, *RabbitPublisher, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("rabbitmq connect failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, &RabbitPublisher{ch: ch, log: log}, nil
}

func (p *RabbitPublisher) SaleCompleted(ctx context.Context, sale *domain.Sale, itemCount int) error {
	event := SaleCompleted{
		SaleID:        sale.ID,
		SaleNo:        sale.SaleNo,
		Total:         sale.Total,
		ItemCount:     itemCount,
		PaymentMethod: sale.PaymentMethod,
		CompletedAt:   time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal sale event: %w", err)
	}

	routingKey := fmt.Sprintf("sale.completed.%s", sale.PaymentMethod)

	return p.ch.PublishWithContext(ctx,
		ExchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
