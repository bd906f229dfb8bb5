package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/pkg/config"
	"github.com/noah-isme/sma-progress-api/pkg/middleware/requestid"
)

// Envelope wraps every published event.
type Envelope struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	SentAt    time.Time   `json:"sentAt"`
	Payload   interface{} `json:"payload"`
}

// Publisher fans domain events out on NATS subjects. A Publisher without a
// connection drops events silently so callers need not branch on configuration.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS using the events configuration.
func Connect(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Publisher{prefix: cfg.SubjectPrefix, logger: logger}, nil
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("sma-progress-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewPublisher(conn, cfg.SubjectPrefix, logger), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject joins the configured prefix with the event type.
func (p *Publisher) Subject(eventType string) string {
	if p == nil || p.prefix == "" {
		return eventType
	}
	return strings.TrimSuffix(p.prefix, ".") + "." + eventType
}

// Publish serialises payload into an Envelope and publishes it.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(Envelope{
		Type:      eventType,
		RequestID: requestid.FromContext(ctx),
		SentAt:    time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if err := p.conn.Publish(p.Subject(eventType), data); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// Close drains the connection if one is open.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
	}
}
