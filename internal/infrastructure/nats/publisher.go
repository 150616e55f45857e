package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/geotask/task-service/internal/api/metrics"
	"github.com/geotask/task-service/internal/core/domain"
)

const (
	streamName    = "GEOTASK_EVENTS"
	subjectPrefix = "geotask"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream and makes sure the event
// stream exists.
func NewPublisher(url string, maxAge time.Duration) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("geotask-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cfg := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error {
	return p.publish(ctx, TaskSubject(event), event)
}

func (p *Publisher) PublishGeofenceTransition(ctx context.Context, t domain.GeofenceTransition) error {
	return p.publish(ctx, TransitionSubject(t), t)
}

func (p *Publisher) publish(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublishedTotal.WithLabelValues(subjectFamily(subject), result).Inc()
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Connected reports whether the connection is currently usable.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// TaskSubject is geotask.task.<event>.<task_id>, e.g. geotask.task.acknowledged.42
func TaskSubject(e domain.TaskEvent) string {
	kind := strings.TrimPrefix(string(e.Type), "task.")
	return fmt.Sprintf("%s.task.%s.%s", subjectPrefix, token(kind), token(e.TaskID))
}

// TransitionSubject is geotask.geofence.<enter|exit>.<user_id>
func TransitionSubject(t domain.GeofenceTransition) string {
	return fmt.Sprintf("%s.geofence.%s.%s", subjectPrefix, token(string(t.Direction)), token(t.UserID))
}

// subjectFamily drops the id token to keep metric cardinality bounded.
func subjectFamily(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i > 0 {
		return subject[:i]
	}
	return subject
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
