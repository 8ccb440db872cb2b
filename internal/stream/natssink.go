package stream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/barsync/internal/model"
)

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event to "<prefix>.<SYMBOL>.<RES>".
type NATSSink struct {
	pub     Publisher
	subject string
	conn    *nats.Conn // set when the sink owns the connection
}

// ConnectNATS dials url and returns a sink that owns the connection.
func ConnectNATS(url, prefix string, key model.SeriesKey, opts ...nats.Option) (*NATSSink, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	s := NewNATSSink(nc, prefix, key)
	s.conn = nc
	return s, nil
}

// NewNATSSink creates a sink over an existing publisher.
func NewNATSSink(pub Publisher, prefix string, key model.SeriesKey) *NATSSink {
	return &NATSSink{pub: pub, subject: Subject(prefix, key)}
}

// Subject returns the subject events for key are published on.
func Subject(prefix string, key model.SeriesKey) string {
	if prefix == "" {
		return key.String()
	}
	return prefix + "." + key.String()
}

func (s *NATSSink) Put(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// Subject returns the subject this sink publishes on.
func (s *NATSSink) Subject() string {
	return s.subject
}

// Close drains and closes an owned connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
