package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Client publishes chat log run notifications on NATS
type Client struct {
	conn   *nats.Conn
	prefix string
	subs   []*nats.Subscription
	logger *slog.Logger
}

// NewClient connects to the NATS server at url. Subjects are prefix.<event>.
func NewClient(ctx context.Context, url, prefix string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("chatlogs"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, prefix: trimPrefix(prefix), logger: logger}, nil
}

func trimPrefix(prefix string) string {
	return strings.TrimSuffix(prefix, ".")
}

// Subject returns the full subject of an event
func (c *Client) Subject(event string) string {
	if c.prefix == "" {
		return event
	}
	return c.prefix + "." + event
}

// Publish sends data as JSON under the event's subject
func (c *Client) Publish(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.conn.Publish(c.Subject(event), payload); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Subscribe calls handler for every event published under the prefix
func (c *Client) Subscribe(handler func(subject string, data []byte)) error {
	subject := c.Subject(">")
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Close drops subscriptions and flushes pending messages
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
