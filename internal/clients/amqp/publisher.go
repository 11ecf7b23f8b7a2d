package amqp

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

type Config struct {
	URL          string
	ExchangeName string
	ExchangeType string
	Durable      bool
}

// ConfigFromEnv reads AMQP_URL, AMQP_EXCHANGE and AMQP_EXCHANGE_TYPE.
func ConfigFromEnv() Config {
	return Config{
		URL:          envutil.String("AMQP_URL", ""),
		ExchangeName: envutil.String("AMQP_EXCHANGE", "homeswap.matches"),
		ExchangeType: envutil.String("AMQP_EXCHANGE_TYPE", "topic"),
		Durable:      envutil.Bool("AMQP_EXCHANGE_DURABLE", true),
	}
}

// Publisher owns one connection and channel to a declared exchange.
type Publisher struct {
	cfg  Config
	log  *logger.Logger
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg Config, log *logger.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp: missing URL")
	}
	if cfg.ExchangeName == "" || cfg.ExchangeType == "" {
		return nil, fmt.Errorf("amqp: exchange name and type are required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.ExchangeName, cfg.ExchangeType, cfg.Durable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %q: %w", cfg.ExchangeName, err)
	}
	return &Publisher{
		cfg:  cfg,
		log:  log.With("service", "AMQPPublisher", "exchange", cfg.ExchangeName),
		conn: conn,
		ch:   ch,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("amqp: not connected")
	}
	if err := p.ch.PublishWithContext(ctx, p.cfg.ExchangeName, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("amqp: publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conn = nil
	}
	return firstErr
}
