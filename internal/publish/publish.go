// Package publish forwards readings to a RabbitMQ queue so downstream
// consumers can persist or analyze them.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/srg/bpmon/internal/bpm"
)

// DefaultQueue is the queue readings are published to when none is configured.
const DefaultQueue = "measures_queue"

// publishTimeout bounds a single broker publish.
const publishTimeout = 30 * time.Second

var errClosed = errors.New("publisher is closed")

// channel is the slice of amqp.Channel the publisher uses. Satisfied by
// *amqp.Channel; tests install a fake.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends readings to a RabbitMQ queue. It implements bpm.Store.
type Publisher struct {
	queue  string
	logger *logrus.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel channel
	closed  bool
}

// Dial connects to the broker at addr and declares the queue.
func Dial(addr, queue string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}

	logger.WithFields(logrus.Fields{
		"queue": queue,
	}).Info("Connected to RabbitMQ")

	return &Publisher{
		queue:   queue,
		logger:  logger,
		conn:    conn,
		channel: ch,
	}, nil
}

// SaveReading publishes the reading as a JSON message on the configured
// queue's default exchange.
func (p *Publisher) SaveReading(ctx context.Context, reading bpm.Reading) error {
	p.mu.Lock()
	ch := p.channel
	closed := p.closed
	p.mu.Unlock()

	if closed || ch == nil {
		return errClosed
	}

	body, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		pubCtx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish reading: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"queue":     p.queue,
		"systolic":  reading.Systolic,
		"diastolic": reading.Diastolic,
	}).Debug("Reading published")
	return nil
}

// Close shuts the channel and connection down. Safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel close: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection close: %w", err))
		}
	}
	return errors.Join(errs...)
}
