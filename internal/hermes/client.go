// Package hermes connects the pipeline to the NATS event bus.
package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientName identifies the pipeline's connections in NATS monitoring.
const ClientName = "insights-pipeline"

var ErrClosed = errors.New("event bus connection closed")

// Handler processes one delivered event.
type Handler func(subject string, data []byte)

// Client publishes pipeline events and consumes upstream transcript events.
// It reconnects indefinitely; publishes made while disconnected are buffered
// by the NATS client up to its reconnect buffer.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewClient(_ context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	logger = logger.With("component", "hermes")
	nc, err := nats.Connect(url, connectOptions(token, logger)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	logger.Info("event bus connected", "url", nc.ConnectedUrlRedacted(), "status", nc.Status().String())
	return &Client{conn: nc, logger: logger}, nil
}

func connectOptions(token string, logger *slog.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(ClientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectJitter(500*time.Millisecond, time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("event bus disconnected, events will be buffered", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("event bus reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("event bus connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("event bus async error", "subject", subject, "error", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

// Publish JSON-encodes data and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	if c.conn.IsClosed() {
		return ErrClosed
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	c.logger.Debug("event published", "subject", subject, "bytes", len(payload))
	return nil
}

// Subscribe registers handler on a queue group so that multiple replicas
// share deliveries instead of each processing every event.
func (c *Client) Subscribe(subject string, handler Handler) error {
	sub, err := c.conn.QueueSubscribe(subject, QueueGroup, dispatch(c.logger, handler))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.logger.Info("subscribed", "subject", subject, "queue", QueueGroup)
	return nil
}

// dispatch adapts handler to a NATS callback. A panicking handler is logged
// and the message dropped so the subscription keeps delivering.
func dispatch(logger *slog.Logger, handler Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("event handler panicked", "subject", msg.Subject, "panic", r)
			}
		}()
		start := time.Now()
		handler(msg.Subject, msg.Data)
		logger.Debug("event handled", "subject", msg.Subject, "duration", time.Since(start))
	}
}

// Drain flushes pending publishes and lets in-flight handlers finish, then
// closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) Close() {
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()
	c.conn.Close()
}
