package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channel is the subset of *amqp.Channel the sink publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the body published to the fanout exchange.
type Message struct {
	Event
	Recipients []uint `json:"recipients"`
}

// AMQPSink republishes events on a fanout exchange for external consumers.
type AMQPSink struct {
	channel  Channel
	exchange string
	logger   *zap.Logger
}

func NewAMQPSink(channel Channel, exchange string, logger *zap.Logger) *AMQPSink {
	return &AMQPSink{channel: channel, exchange: exchange, logger: logger.Named("amqp")}
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Deliver(ctx context.Context, event Event, recipients []uint) error {
	body, err := json.Marshal(Message{Event: event, Recipients: recipients})
	if err != nil {
		return err
	}

	err = s.channel.PublishWithContext(ctx,
		s.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         string(event.Type),
			Body:         body,
			Timestamp:    event.OccurredAt,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	s.logger.Debug("event published", zap.String("type", string(event.Type)), zap.Int("recipients", len(recipients)))
	return nil
}

// Broker holds the RabbitMQ connection backing an AMQPSink.
type Broker struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// DialBroker connects and declares the durable fanout exchange.
func DialBroker(url, exchange string) (*Broker, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Broker{Conn: conn, Channel: channel}, nil
}

func (b *Broker) Close() {
	if b.Channel != nil {
		b.Channel.Close()
	}
	if b.Conn != nil {
		b.Conn.Close()
	}
}
