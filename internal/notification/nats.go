package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes alerts as JSON on "{subject}.{exchange}.{symbol}".
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to url with bounded reconnects.
func NewNATSNotifier(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("regime-seeker"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSNotifier{conn: conn, subject: subject}, nil
}

func (n *NATSNotifier) Name() string { return "nats" }

// Subject returns the subject an alert is published on. Dots in the
// exchange name become underscores so it stays a single token.
func (n *NATSNotifier) Subject(alert Alert) string {
	exchange := strings.ReplaceAll(alert.Instrument.Exchange, ".", "_")
	return n.subject + "." + exchange + "." + alert.Instrument.Symbol
}

func (n *NATSNotifier) Send(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("nats: marshal: %w", err)
	}
	if err := n.conn.Publish(n.Subject(alert), data); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}
