package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"login-server/internal/models"
	"login-server/internal/service"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AccountBanConsumer listens for ban events from the admin tooling and
// kicks the banned account's live sessions.
type AccountBanConsumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	auth        service.AuthService
	logger      *zap.Logger
	queueName   string
	consumerTag string
	done        chan error
}

func NewAccountBanConsumer(
	conn *amqp.Connection,
	auth service.AuthService,
	logger *zap.Logger,
) (*AccountBanConsumer, error) {
	if conn == nil {
		return nil, errors.New("RabbitMQ connection is nil")
	}
	if auth == nil {
		return nil, errors.New("AuthService is nil")
	}

	consumerTag := fmt.Sprintf("account_ban_consumer_%d", time.Now().UnixNano())
	consumer := &AccountBanConsumer{
		conn: conn,
		auth: auth,
		logger: logger.Named("AccountBanConsumer").
			With(zap.String("consumerTag", consumerTag), zap.String("queue", AccountBanQueue)),
		queueName:   AccountBanQueue,
		consumerTag: consumerTag,
		done:        make(chan error),
	}

	if err := consumer.setupChannelAndQueue(); err != nil {
		return nil, fmt.Errorf("failed to setup channel and queue: %w", err)
	}

	consumer.logger.Info("AccountBanConsumer initialized")
	return consumer, nil
}

func (c *AccountBanConsumer) setupChannelAndQueue() error {
	var err error
	c.ch, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = c.ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = c.ch.Close()
		return fmt.Errorf("failed to declare queue '%s': %w", c.queueName, err)
	}

	// One message at a time; ban events are rare and ordering matters
	// more than throughput.
	if err := c.ch.Qos(1, 0, false); err != nil {
		_ = c.ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	return nil
}

// StartConsuming blocks until the consumer is stopped or the channel
// fails.
func (c *AccountBanConsumer) StartConsuming() error {
	if c.ch == nil {
		return errors.New("channel is not initialized")
	}
	c.logger.Info("Listening for account ban events")

	deliveries, err := c.ch.Consume(
		c.queueName,
		c.consumerTag,
		false, // auto-ack off, we ack by hand
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go c.handleDeliveries(deliveries)

	go func() {
		notifyClose := make(chan *amqp.Error)
		c.ch.NotifyClose(notifyClose)
		select {
		case err := <-notifyClose:
			if err != nil {
				c.logger.Error("RabbitMQ channel closed unexpectedly", zap.Error(err))
				c.done <- err
			} else {
				c.done <- nil
			}
		case <-c.done:
		}
	}()

	return <-c.done
}

func (c *AccountBanConsumer) handleDeliveries(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		log := c.logger.With(zap.Uint64("deliveryTag", d.DeliveryTag))

		var payload models.AccountBanPayload
		if err := json.Unmarshal(d.Body, &payload); err != nil || payload.AccountID == 0 {
			log.Warn("Dropping malformed ban event", zap.Error(err))
			if nackErr := d.Nack(false, false); nackErr != nil {
				log.Error("Failed to nack malformed ban event", zap.Error(nackErr))
			}
			continue
		}

		log = log.With(zap.Uint32("account_id", payload.AccountID))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		kicked, err := c.auth.KickAccount(ctx, payload.AccountID)
		cancel()

		if err != nil {
			// Requeue so a transient Redis failure does not leave a
			// banned account logged in.
			log.Error("Failed to kick banned account, message will be redelivered", zap.Error(err))
			if nackErr := d.Nack(false, true); nackErr != nil {
				log.Error("Failed to nack ban event", zap.Error(nackErr))
			}
			time.Sleep(time.Second)
			continue
		}

		log.Info("Banned account kicked",
			zap.Int64("sessions_removed", kicked),
			zap.String("reason", payload.Reason))
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("Failed to ack ban event", zap.Error(ackErr))
		}
	}

	c.logger.Info("Deliveries channel closed")
	select {
	case c.done <- nil:
	default:
	}
}

// Stop cancels the subscription and closes the channel.
func (c *AccountBanConsumer) Stop() error {
	if c.ch == nil {
		return nil
	}
	c.logger.Info("Stopping AccountBanConsumer")

	if err := c.ch.Cancel(c.consumerTag, false); err != nil {
		c.logger.Error("Failed to cancel consumer", zap.Error(err))
	}
	if err := c.ch.Close(); err != nil {
		c.logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
	}

	select {
	case c.done <- nil:
	default:
	}
	return nil
}
