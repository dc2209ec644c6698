package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"login-server/internal/interfaces"
	"login-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Queue names shared with the game server.
const (
	ItemReturnQueue = "ah_item_returns"
	AccountBanQueue = "login_account_bans"
)

// publishChannel is the slice of *amqp.Channel the publisher needs.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type rabbitMQItemReturnPublisher struct {
	channel   publishChannel
	queueName string
	logger    *zap.Logger
}

var _ interfaces.ItemReturnPublisher = (*rabbitMQItemReturnPublisher)(nil)

// NewItemReturnPublisher opens a channel and declares the durable item
// return queue. The game server consumes it and mails the items back to
// their sellers.
func NewItemReturnPublisher(conn *amqp.Connection, logger *zap.Logger) (interfaces.ItemReturnPublisher, error) {
	if conn == nil {
		return nil, errors.New("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("item return publisher: failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		ItemReturnQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("item return publisher: failed to declare queue '%s': %w", ItemReturnQueue, err)
	}

	log := logger.Named("ItemReturnPublisher").With(zap.String("queue", ItemReturnQueue))
	log.Info("Item return queue declared")

	return &rabbitMQItemReturnPublisher{channel: ch, queueName: ItemReturnQueue, logger: log}, nil
}

func (p *rabbitMQItemReturnPublisher) PublishItemReturn(ctx context.Context, payload models.ItemReturnPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal item return for listing %d: %w", payload.ListingID, err)
	}

	if err := p.publish(ctx, body); err != nil {
		p.logger.Error("Failed to publish item return",
			zap.Int64("listing_id", payload.ListingID),
			zap.Uint32("seller_id", payload.SellerID),
			zap.Error(err))
		return fmt.Errorf("failed to publish item return for listing %d: %w", payload.ListingID, err)
	}

	p.logger.Debug("Item return published",
		zap.Int64("listing_id", payload.ListingID),
		zap.Int32("item_id", payload.ItemID),
		zap.Uint32("seller_id", payload.SellerID))
	return nil
}

// publish sends one persistent JSON message, retrying transient failures.
func (p *rabbitMQItemReturnPublisher) publish(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("RabbitMQ channel is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (default)
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "login-server",
			},
		)
		if err == nil {
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("publish to queue %s failed after retries: %w", p.queueName, err)
}

// Close releases the publisher's channel.
func (p *rabbitMQItemReturnPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}
