package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"promptbank/internal/config"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Client publishes messages to a single durable exchange
type Client interface {
	Close() error

	DeclareExchange(name, kind string) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error

	Health() error
}

type client struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       config.RabbitMQConfig
	mu           sync.Mutex
	reconnecting bool
	closed       bool
}

// NewClientFromConfig dials the broker and declares the configured exchange
func NewClientFromConfig(cfg config.RabbitMQConfig) (Client, error) {
	c := &client{config: cfg}

	if err := c.connect(); err != nil {
		return nil, err
	}

	if err := c.DeclareExchange(cfg.Exchange, cfg.ExchangeType); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// ErrReconnecting is returned by Publish while the client is re-dialing the
// broker in the background
var ErrReconnecting = errors.New("rabbitmq client is reconnecting")

const dialTimeout = 5 * time.Second

// dial opens a connection and channel without touching the client state
func (c *client) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(c.config.URL, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to RabbitMQ")
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open RabbitMQ channel")
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

// install makes conn and ch current. Callers hold c.mu or own c exclusively.
func (c *client) install(conn *amqp.Connection, ch *amqp.Channel) {
	c.conn = conn
	c.channel = ch
	c.watch(conn)

	log.Info().Str("exchange", c.config.Exchange).Msg("RabbitMQ connection established")
}

// connect dials and installs a connection. Callers hold c.mu or own c exclusively.
func (c *client) connect() error {
	conn, ch, err := c.dial()
	if err != nil {
		return err
	}
	c.install(conn, ch)
	return nil
}

// watch reconnects in the background when the broker drops conn
func (c *client) watch(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		err, ok := <-notifyClose
		if !ok || err == nil {
			return
		}

		log.Warn().
			Str("reason", err.Reason).
			Int("code", err.Code).
			Bool("recover", err.Recover).
			Msg("RabbitMQ connection closed, attempting to reconnect...")

		c.doReconnect(conn)
	}()
}

// doReconnect re-dials with exponential backoff. c.mu is only held while the
// client state changes, so Publish fails fast instead of waiting out the loop.
func (c *client) doReconnect(dead *amqp.Connection) {
	c.mu.Lock()
	if c.reconnecting || c.closed || c.conn != dead {
		c.mu.Unlock()
		return
	}

	c.reconnecting = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	backoff := c.config.RetryDuration()
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := 30 * time.Second

	for attempt := 1; c.config.MaxRetries <= 0 || attempt <= c.config.MaxRetries; attempt++ {
		log.Info().Int("attempt", attempt).Dur("backoff", backoff).Msg("Attempting to reconnect to RabbitMQ")

		conn, ch, err := c.dial()
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				ch.Close()
				conn.Close()
				return
			}
			c.install(conn, ch)
			c.mu.Unlock()

			log.Info().Msg("Successfully reconnected to RabbitMQ")
			return
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
	}

	log.Error().Int("attempts", c.config.MaxRetries).Msg("Giving up reconnecting to RabbitMQ, will retry on next publish")
}

func (c *client) ensureOpen() error {
	if c.closed {
		return errors.New("rabbitmq client closed")
	}
	if c.reconnecting {
		return ErrReconnecting
	}
	if c.conn == nil || c.channel == nil || c.conn.IsClosed() || c.channel.IsClosed() {
		return c.connect()
	}
	return nil
}

func (c *client) Health() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reconnecting {
		return ErrReconnecting
	}

	if c.conn == nil || c.channel == nil {
		return fmt.Errorf("nil connection or channel")
	}

	if c.conn.IsClosed() {
		log.Error().Msg("RabbitMQ connection is closed")
		return fmt.Errorf("connection is closed")
	}

	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ channel")
			return fmt.Errorf("channel close error: %w", err)
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			return fmt.Errorf("connection close error: %w", err)
		}
	}

	log.Info().Msg("RabbitMQ connection and channel closed")
	return nil
}

func (c *client) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen(); err != nil {
		return fmt.Errorf("failed to reconnect before publishing: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		Headers:      headers,
	}

	err := c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// one retry on a fresh channel
		if connErr := c.connect(); connErr == nil {
			err = c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
		}
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("exchange", exchange).
			Str("routingKey", routingKey).
			Msg("Failed to publish message")
		return err
	}

	log.Debug().
		Str("exchange", exchange).
		Str("routingKey", routingKey).
		Int("size", len(body)).
		Msg("Published message")

	return nil
}

func (c *client) DeclareExchange(name, kind string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpen(); err != nil {
		return fmt.Errorf("failed to reconnect before declaring exchange: %w", err)
	}

	err := c.channel.ExchangeDeclare(
		name,  // name
		kind,  // type
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		log.Error().Err(err).Str("exchange", name).Msg("Failed to declare exchange")
		return err
	}

	log.Info().Str("exchange", name).Str("type", kind).Msg("Declared exchange")
	return nil
}
