package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher emits engine events as JSON on "<subject>.<event name>".
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	source  string
	log     zerolog.Logger
}

// natsEnvelope is the wire format of a published event.
type natsEnvelope struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Time   time.Time      `json:"time"`
	Voice  string         `json:"voice,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewNATSPublisher connects to url. The connection reconnects forever so a
// NATS outage never affects synthesis.
func NewNATSPublisher(url, subject string, log zerolog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = "kokoro.events"
	}
	nc, err := nats.Connect(url,
		nats.Name("kokorod"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("events: nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATSPublisherWithConn(nc, subject, log), nil
}

// NewNATSPublisherWithConn wraps an existing connection.
func NewNATSPublisherWithConn(nc *nats.Conn, subject string, log zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject, source: "kokorod", log: log}
}

func (p *NATSPublisher) Publish(e Event) {
	env := natsEnvelope{
		ID:     uuid.NewString(),
		Type:   e.Name,
		Source: p.source,
		Time:   e.Time.UTC(),
		Voice:  e.Voice,
		Fields: e.Fields,
	}
	b, err := json.Marshal(env)
	if err != nil {
		p.log.Debug().Err(err).Str("event", e.Name).Msg("events: marshal failed")
		return
	}
	if err := p.nc.Publish(p.subject+"."+e.Name, b); err != nil {
		p.log.Debug().Err(err).Str("event", e.Name).Msg("events: publish failed")
	}
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
