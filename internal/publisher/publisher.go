// Package publisher forwards parsed statements to a message broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends statements somewhere downstream.
type Publisher interface {
	Publish(ctx context.Context, stmt *models.Statement) error
	Close() error
}

// Config describes the AMQP target.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPPublisher publishes statements as JSON to a topic exchange. The routing
// key is "<RoutingKey>.<account>", or "<RoutingKey>.pending.<account>" for
// intraday statements.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  logging.Logger
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(cfg Config, logger logging.Logger) (*AMQPPublisher, error) {
	logger = logging.OrDefault(logger)
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher initialized",
		logging.Field{Key: logging.FieldEndpoint, Value: cfg.URL},
		logging.Field{Key: "exchange", Value: cfg.Exchange},
		logging.Field{Key: "routing_key", Value: cfg.RoutingKey})

	return &AMQPPublisher{conn: conn, channel: channel, cfg: cfg, logger: logger}, nil
}

// RoutingKey returns the key a statement is published under.
func RoutingKey(prefix string, stmt *models.Statement) string {
	account := strings.NewReplacer(".", "_", "*", "_", "#", "_").Replace(stmt.AccountCode)
	if account == "" {
		account = "unknown"
	}
	if stmt.Pending {
		return prefix + ".pending." + account
	}
	return prefix + "." + account
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, stmt *models.Statement) error {
	body, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("failed to marshal statement: %w", err)
	}

	key := RoutingKey(p.cfg.RoutingKey, stmt)
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         stmt.Type,
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish statement: %w", err)
	}

	p.logger.Debug("Published statement",
		logging.Field{Key: "routing_key", Value: key},
		logging.Field{Key: "message_id", Value: msg.MessageId})
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NopPublisher discards every statement.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *models.Statement) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

// PublishAll publishes statements in order and stops at the first error.
func PublishAll(ctx context.Context, p Publisher, stmts []*models.Statement) error {
	for i, stmt := range stmts {
		if err := p.Publish(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}
