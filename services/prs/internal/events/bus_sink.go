package events

import (
	"context"
	"strings"

	"prsd/pkg/bus"
)

// DefaultSubjectPrefix is where lease events are published unless configured otherwise.
const DefaultSubjectPrefix = "prs.leases"

// Publisher is the part of the bus the sink needs.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

var _ Publisher = (*bus.Bus)(nil)

// BusSink publishes each record to <prefix>.<type>.
type BusSink struct {
	pub    Publisher
	prefix string
}

func NewBusSink(pub Publisher, prefix string) *BusSink {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &BusSink{pub: pub, prefix: prefix}
}

func (s *BusSink) Name() string { return "nats" }

// Subjects is the wildcard covering every subject this sink publishes to.
func (s *BusSink) Subjects() string { return s.prefix + ".>" }

func (s *BusSink) Subject(rec Record) string { return s.prefix + "." + string(rec.Type) }

func (s *BusSink) Deliver(ctx context.Context, rec Record) error {
	return s.pub.Publish(ctx, s.Subject(rec), rec)
}
