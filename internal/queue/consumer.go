package queue

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"autoleads/internal/logger"
)

// RunHandler handles one run job. Returning an error requeues the delivery.
type RunHandler func(ctx context.Context, job *RunJob) error

// Consumer consumes campaign run jobs
type Consumer struct {
	conn      *Connection
	queueName string
	handler   RunHandler
	stopChan  chan struct{}
	doneChan  chan struct{}
	log       zerolog.Logger
}

// NewConsumer creates a consumer and declares its queue
func NewConsumer(conn *Connection, queueName string, handler RunHandler) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareRunQueue(ch, queueName); err != nil {
		return nil, err
	}

	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		log:       logger.WithComponent("consumer"),
	}, nil
}

// Start begins consuming with manual acks and prefetch 1
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)

		for {
			select {
			case <-c.stopChan:
				c.log.Info().Msg("Consumer stopping")
				return
			case <-ctx.Done():
				c.log.Info().Msg("Consumer context cancelled")
				return
			case d, ok := <-msgs:
				if !ok {
					c.log.Warn().Msg("Delivery channel closed")
					return
				}
				c.deliver(ctx, d)
			}
		}
	}()

	c.log.Info().Str("queue", c.queueName).Msg("Consumer started")
	return nil
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	job, err := DecodeRunJob(d.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("Dropping malformed run job")
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, job); err != nil {
		c.log.Error().Err(err).Str("job_id", job.JobID).Int("campaign_id", job.CampaignID).Msg("Run job failed, requeueing")
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

// Stop stops consuming and waits for the delivery loop to exit
func (c *Consumer) Stop() error {
	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}
	<-c.doneChan

	c.log.Info().Msg("Consumer stopped")
	return nil
}
