package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// AMQPSink publishes events to a RabbitMQ fanout exchange so that other
// relays (push, SMS) can subscribe.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialAMQP connects with exponential backoff and declares the exchange.
func DialAMQP(url, exchange string, maxRetries uint64) (*AMQPSink, error) {
	var conn *amqp.Connection

	attempt := 0
	operation := func() error {
		attempt++
		c, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to connect to RabbitMQ, retrying")
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("amqp: failed to connect after %d attempts: %w", attempt, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: failed to declare exchange %s: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("Connected to RabbitMQ")
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("amqp: failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(ctx, s.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Type),
	})
	if err != nil {
		return fmt.Errorf("amqp: failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ch.Close(); err != nil {
		log.Warn().Err(err).Msg("amqp: failed to close channel")
	}
	return s.conn.Close()
}
