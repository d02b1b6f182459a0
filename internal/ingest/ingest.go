// Package ingest bridges memory events between NATS subjects and the cache.
// A relay client outside this module forwards verified relay events onto
// the bus; the Subscriber caches them and the Publisher sends local claims
// back out.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/k0sti/snowclaw-memory/internal/cache"
	"github.com/k0sti/snowclaw-memory/internal/codec"
	"github.com/k0sti/snowclaw-memory/internal/metrics"
	"github.com/k0sti/snowclaw-memory/internal/model"
)

// handleTimeout bounds the store write for one message.
const handleTimeout = 5 * time.Second

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Subscriber) { s.log = l } }

// WithMetrics counts undecodable messages in m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Subscriber) { s.metrics = m } }

// Subscriber caches every memory event received on its subjects.
type Subscriber struct {
	nc       *nats.Conn
	cache    *cache.Cache
	subjects []string
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber creates a Subscriber. Call Start to begin receiving.
func NewSubscriber(nc *nats.Conn, c *cache.Cache, subjects []string, opts ...Option) *Subscriber {
	s := &Subscriber{
		nc:       nc,
		cache:    c,
		subjects: subjects,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to every subject.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) > 0 {
		return fmt.Errorf("subscriber already started")
	}
	for _, subject := range s.subjects {
		sub, err := s.nc.Subscribe(subject, s.handle)
		if err != nil {
			for _, prev := range s.subs {
				prev.Unsubscribe()
			}
			s.subs = nil
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		s.log.Info("subscribed", zap.String("subject", subject))
	}
	// make sure the server has registered interest before returning
	if err := s.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	return nil
}

// Stop drains the subscriptions, letting in-flight messages finish.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && first == nil {
			first = fmt.Errorf("drain %s: %w", sub.Subject, err)
		}
	}
	s.subs = nil
	return first
}

func (s *Subscriber) handle(msg *nats.Msg) {
	m, err := codec.DecodeJSON(msg.Data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IngestedTotal.WithLabelValues(metrics.ResultRejected).Inc()
		}
		s.log.Warn("undecodable memory event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	// the cache logs and counts its own failures
	if err := s.cache.CacheMemory(ctx, m, msg.Data); err != nil {
		return
	}
	s.log.Debug("ingested memory event", zap.String("subject", msg.Subject), zap.String("id", m.ID))
}

// Publisher sends locally authored claims onto the bus.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher publishes under prefix.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns <prefix>.public or <prefix>.group for m.
func (p *Publisher) Subject(m model.Memory) string {
	return p.prefix + "." + m.Tier.Scope()
}

// Publish encodes m as a transport event and publishes it. When ctx has a
// deadline, Publish waits for the server to acknowledge the write.
func (p *Publisher) Publish(ctx context.Context, m model.Memory) error {
	ev, err := codec.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.ID, err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", m.ID, err)
	}
	if err := p.nc.Publish(p.Subject(m), data); err != nil {
		return fmt.Errorf("publish %s: %w", m.ID, err)
	}
	if _, ok := ctx.Deadline(); ok {
		if err := p.nc.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", m.ID, err)
		}
	}
	return nil
}
