// Package events publishes pipeline activity to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"docchat/internal/config"
	"docchat/internal/helper"
)

const (
	SubjectExchangeCompleted = "exchange.completed"
	SubjectIngestCompleted   = "ingest.completed"
	SubjectSessionClosed     = "session.closed"
)

type Publisher interface {
	Publish(subject string, data any) error
	Close()
}

type ExchangeCompleted struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	At        time.Time `json:"at"`
}

type IngestCompleted struct {
	EventID    string    `json:"event_id"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

type SessionClosed struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	Exchanges int       `json:"exchanges"`
	At        time.Time `json:"at"`
}

// Client is a Publisher backed by a NATS connection.
type Client struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewClient(url, token string) (*Client, error) {
	opts := []nats.Option{
		nats.Name("docchat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	log.Info().Str("subject", subject).Msg("subscribed")
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	_ = c.conn.Drain()
}

// Noop discards everything. Used when no NATS URL is configured.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }
func (Noop) Close()                    {}

// NewPublisher connects to NATS when cfg names a URL and returns Noop otherwise.
func NewPublisher(cfg *config.EventsConfig) (Publisher, error) {
	if cfg.NatsURL == "" {
		return Noop{}, nil
	}
	c, err := NewClient(cfg.NatsURL, cfg.NatsToken)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Emitter prefixes subjects and stamps events. Publication failures are
// logged and never returned, the pipeline does not depend on delivery.
type Emitter struct {
	pub    Publisher
	prefix string
}

func NewEmitter(pub Publisher, prefix string) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	return &Emitter{pub: pub, prefix: prefix}
}

func (e *Emitter) Subject(name string) string {
	if e.prefix == "" {
		return name
	}
	return e.prefix + "." + name
}

func (e *Emitter) ExchangeCompleted(_ context.Context, sessionID, question, answer string, sources []string) {
	id, ok := eventID(SubjectExchangeCompleted)
	if !ok {
		return
	}
	e.publish(SubjectExchangeCompleted, ExchangeCompleted{
		EventID:   id,
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Sources:   sources,
		At:        time.Now().UTC(),
	})
}

func (e *Emitter) IngestCompleted(_ context.Context, documents, chunks int, took time.Duration) {
	id, ok := eventID(SubjectIngestCompleted)
	if !ok {
		return
	}
	e.publish(SubjectIngestCompleted, IngestCompleted{
		EventID:    id,
		Documents:  documents,
		Chunks:     chunks,
		DurationMS: took.Milliseconds(),
		At:         time.Now().UTC(),
	})
}

func (e *Emitter) SessionClosed(_ context.Context, sessionID string, exchanges int) {
	id, ok := eventID(SubjectSessionClosed)
	if !ok {
		return
	}
	e.publish(SubjectSessionClosed, SessionClosed{
		EventID:   id,
		SessionID: sessionID,
		Exchanges: exchanges,
		At:        time.Now().UTC(),
	})
}

func eventID(name string) (string, bool) {
	id, err := helper.GenerateUUID()
	if err != nil {
		log.Warn().Err(err).Str("event", name).Msg("Dropping event")
		return "", false
	}
	return id, true
}

func (e *Emitter) publish(name string, data any) {
	subject := e.Subject(name)
	if err := e.pub.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

func (e *Emitter) Close() {
	e.pub.Close()
}
