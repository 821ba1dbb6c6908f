// Package events publishes manifest entries to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
)

var (
	ErrDropped = errors.New("events: queue full, event dropped")
	ErrClosed  = errors.New("events: publisher closed")
)

type Event struct {
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	Status    string    `json:"status"`
	SizeBytes int64     `json:"size_bytes"`
	West      float64   `json:"west"`
	South     float64   `json:"south"`
	East      float64   `json:"east"`
	North     float64   `json:"north"`
	TS        time.Time `json:"ts"`
}

func FromEntry(runID string, e model.ManifestEntry, ts time.Time) Event {
	return Event{
		RunID:     runID,
		Path:      e.Path,
		Format:    string(e.Format),
		Status:    string(e.Status),
		SizeBytes: e.SizeBytes,
		West:      e.Coverage.West(),
		South:     e.Coverage.South(),
		East:      e.Coverage.East(),
		North:     e.Coverage.North(),
		TS:        ts.UTC(),
	}
}

type Publisher struct {
	topic   string
	logger  *slog.Logger
	prod    sarama.AsyncProducer
	events  chan Event
	stopped chan struct{}
	drained chan struct{}
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewConfig is the producer configuration used by NewPublisher.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "gmrt-tiles"
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return cfg
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: no brokers configured")
	}
	prod, err := sarama.NewAsyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return NewWithProducer(prod, topic, queueSize, logger), nil
}

// NewWithProducer wraps an existing producer; the publisher owns it from then on.
func NewWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger,
		prod:    prod,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
		now:     time.Now,
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("events: marshal", "err", err)
				observability.IncEvent("failed")
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Path),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.drained)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncEvent("failed")
				p.logger.Warn("events: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev without blocking; a full queue drops it.
func (p *Publisher) Publish(ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.events <- ev:
		observability.IncEvent("enqueued")
		return nil
	default:
		observability.IncEvent("dropped")
		return ErrDropped
	}
}

// Record publishes one manifest entry.
func (p *Publisher) Record(_ context.Context, runID string, e model.ManifestEntry) error {
	return p.Publish(FromEntry(runID, e, p.now()))
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	<-p.drained
	if err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}
