package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/config"
)

const (
	rabbitExchangeType = "topic"
	rabbitDialAttempts = 5
	rabbitDialBackoff  = 2 * time.Second
)

// rabbitClient publishes to a topic exchange using the configured topic as
// routing key. Consumers share a durable queue named after the consumer group.
type rabbitClient struct {
	url      string
	exchange string
	topic    string
	queue    string
	logger   *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	pubChan *amqp.Channel
}

func newRabbitClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	client := &rabbitClient{
		url:      cfg.Messaging.RabbitMQ.URL,
		exchange: cfg.Messaging.RabbitMQ.Exchange,
		topic:    cfg.Messaging.Kafka.Topic,
		queue:    cfg.Messaging.ConsumerGroup,
		logger:   logger,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.connect(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing rabbitmq client")
			return client.close()
		},
	})

	return client, nil
}

func (r *rabbitClient) connect(ctx context.Context) error {
	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= rabbitDialAttempts; attempt++ {
		conn, err = amqp.Dial(r.url)
		if err == nil {
			break
		}
		r.logger.Warn("rabbitmq dial failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rabbitDialBackoff):
		}
	}
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(r.exchange, rabbitExchangeType, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", r.exchange, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.pubChan = ch
	r.mu.Unlock()

	r.logger.Info("rabbitmq connected", zap.String("exchange", r.exchange), zap.String("routing_key", r.topic))
	return nil
}

func (r *rabbitClient) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.pubChan = nil
	return err
}

// Publish serialises writes on the shared channel; amqp channels are not safe
// for concurrent publishing.
func (r *rabbitClient) Publish(ctx context.Context, key []byte, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubChan == nil {
		return errors.New("rabbitmq client not connected")
	}
	return r.pubChan.PublishWithContext(ctx, r.exchange, r.topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(key),
		Timestamp:    time.Now().UTC(),
		Body:         value,
	})
}

// Consume opens a dedicated channel and blocks until ctx is done or the
// broker closes the delivery stream. Failed deliveries are requeued.
func (r *rabbitClient) Consume(ctx context.Context, handler Handler) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("rabbitmq client not connected")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	q, err := ch.QueueDeclare(r.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", r.queue, err)
	}
	if err := ch.QueueBind(q.Name, r.topic, r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msg := Message{
				Topic:   d.RoutingKey,
				Key:     []byte(d.MessageId),
				Value:   d.Body,
				Headers: stringHeaders(d.Headers),
				Offset:  int64(d.DeliveryTag),
				Time:    d.Timestamp,
			}
			if err := handler(ctx, msg); err != nil {
				r.logger.Error("message handler failed", zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
				if nackErr := d.Nack(false, true); nackErr != nil {
					r.logger.Warn("nack failed", zap.Error(nackErr))
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				r.logger.Warn("ack failed", zap.Error(err))
			}
		}
	}
}

func (r *rabbitClient) Topic() string { return r.topic }

func stringHeaders(table amqp.Table) map[string]string {
	if len(table) == 0 {
		return nil
	}
	out := make(map[string]string, len(table))
	for k, v := range table {
		out[k] = fmt.Sprint(v)
	}
	return out
}
