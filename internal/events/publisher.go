// Package events publishes pipeline progress events to NATS.
//
// Each orchestrator event is marshaled as JSON and published to
//
//	{prefix}.{run_id}.{kind}
//
// so subscribers can follow a single run with "{prefix}.{run_id}.>" or every
// completion with "{prefix}.*.run_finished".
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "agentd.runs"

// ErrDisabled is returned by Connect when event publishing is turned off.
var ErrDisabled = errors.New("nats publishing disabled")

// Publisher sends orchestrator events to NATS.
type Publisher struct {
	conn   *nats.Conn
	owned  bool
	prefix string
	logger *logging.Logger
}

// Connect dials the configured NATS server. The returned publisher owns the
// connection and closes it in Close.
func Connect(cfg config.NATSConfig, logger *logging.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url,
		nats.Name("agentd"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{conn: nc, prefix: prefix, logger: logger.Named("events")}
}

// Subject returns the subject an event is published to.
func (p *Publisher) Subject(ev orchestrator.Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, token(ev.RunID), token(string(ev.Kind)))
}

// Publish sends one event.
func (p *Publisher) Publish(ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Callback adapts the publisher to orchestrator.OnProgress. Publish failures
// are logged and never affect the run.
func (p *Publisher) Callback() orchestrator.ProgressCallback {
	return func(ctx context.Context, ev orchestrator.Event) {
		if err := p.Publish(ev); err != nil {
			p.logger.Warn(ctx, "failed to publish run event",
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
		}
	}
}

// Flush waits until buffered events reach the server.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.conn.Drain()
}

// token makes s safe for use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
