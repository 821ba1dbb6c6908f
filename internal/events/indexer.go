package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/model"
	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
)

// Sink receives the entries rebuilt from consumed events.
type Sink interface {
	Record(ctx context.Context, runID string, e model.ManifestEntry) error
}

type IndexerConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

func DefaultIndexerConfig(brokers []string, topic, groupID string) IndexerConfig {
	if groupID == "" {
		groupID = "gmrt-indexer"
	}
	return IndexerConfig{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          groupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
	}
}

// Indexer consumes manifest events and replays them into a Sink, so files
// fetched by other processes become visible in the manifest index.
type Indexer struct {
	log  *slog.Logger
	cfg  IndexerConfig
	sink Sink

	seenMu sync.Mutex
	seen   *lru.Cache[string, time.Time]

	assigned atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewIndexer(cfg IndexerConfig, sink Sink, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	seen, _ := lru.New[string, time.Time](8192)
	return &Indexer{log: logger, cfg: cfg, sink: sink, seen: seen}
}

func (ix *Indexer) Start(ctx context.Context) error {
	if ix.sink == nil {
		return errors.New("events indexer: sink is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "gmrt-tiles-indexer"
	cfg.Consumer.Group.Session.Timeout = ix.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = ix.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = ix.cfg.RebalanceTimeout
	if ix.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(ix.cfg.Brokers, ix.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   func(sarama.ConsumerGroupSession) { ix.assigned.Store(true) },
		cleanup: func(sarama.ConsumerGroupSession) { ix.assigned.Store(false) },
		process: ix.handleMessage,
	}

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				ix.log.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{ix.cfg.Topic}, h); err != nil {
				ix.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		for err := range group.Errors() {
			ix.log.Error("kafka group error", "err", err)
		}
	}()

	ix.log.Info("manifest indexer started",
		"topic", ix.cfg.Topic, "group", ix.cfg.GroupID, "brokers", ix.cfg.Brokers)
	return nil
}

func (ix *Indexer) Stop() {
	if ix.cancel != nil {
		ix.cancel()
	}
	ix.wg.Wait()
	ix.log.Info("manifest indexer stopped")
}

// Ping fails until the group has assigned partitions to this member.
func (ix *Indexer) Ping(context.Context) error {
	if !ix.assigned.Load() {
		return errors.New("no partitions assigned")
	}
	return nil
}

// handleMessage skips undecodable and stale events; only sink failures are
// returned so the message is redelivered.
func (ix *Indexer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncEvent("invalid")
		ix.log.Warn("skip undecodable manifest event", "offset", msg.Offset, "err", err)
		return nil
	}
	entry, err := ev.Entry()
	if err != nil {
		observability.IncEvent("invalid")
		ix.log.Warn("skip invalid manifest event", "offset", msg.Offset, "path", ev.Path, "err", err)
		return nil
	}
	ts := ev.TS
	if ts.IsZero() {
		ts = msg.Timestamp
	}
	if !ix.newer(entry.Path, ts) {
		observability.IncEvent("stale")
		return nil
	}
	if err := ix.sink.Record(ctx, ev.RunID, entry); err != nil {
		observability.IncEvent("failed")
		ix.forget(entry.Path)
		return fmt.Errorf("index %s: %w", entry.Path, err)
	}
	observability.IncEvent("indexed")
	return nil
}

// newer reports whether ts is later than the last event applied for path.
func (ix *Indexer) newer(path string, ts time.Time) bool {
	ix.seenMu.Lock()
	defer ix.seenMu.Unlock()
	if last, ok := ix.seen.Get(path); ok && !ts.After(last) {
		return false
	}
	ix.seen.Add(path, ts)
	return true
}

func (ix *Indexer) forget(path string) {
	ix.seenMu.Lock()
	defer ix.seenMu.Unlock()
	ix.seen.Remove(path)
}

// Entry rebuilds the manifest entry carried by ev.
func (ev Event) Entry() (model.ManifestEntry, error) {
	if ev.Path == "" {
		return model.ManifestEntry{}, fmt.Errorf("%w: event without path", model.ErrInvalidArgument)
	}
	cov, err := model.NewCoverage(ev.West, ev.South, ev.East, ev.North)
	if err != nil {
		return model.ManifestEntry{}, err
	}
	format, err := model.ParseFormat(ev.Format)
	if err != nil {
		return model.ManifestEntry{}, err
	}
	status := model.Status(ev.Status)
	if status != model.StatusCreated && status != model.StatusReused {
		return model.ManifestEntry{}, fmt.Errorf("%w: unknown status %q", model.ErrInvalidArgument, ev.Status)
	}
	return model.ManifestEntry{
		Path:      ev.Path,
		Format:    format,
		Coverage:  cov,
		SizeBytes: ev.SizeBytes,
		Status:    status,
	}, nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
