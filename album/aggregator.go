package album

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/internal/ctxkeys"
	"github.com/BaSui01/interiorlens/internal/metrics"
	"github.com/BaSui01/interiorlens/types"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("album aggregator closed")

// FinalizeFunc receives every finalized batch exactly once, on its own
// goroutine. A returned error is logged and counted; the batch is not retried.
type FinalizeFunc func(ctx context.Context, batch *types.FinalizedBatch) error

// Config configures the aggregator.
type Config struct {
	// Window is the quiescence interval after the last arrival of a group.
	Window time.Duration `yaml:"window" json:"window"`
	// MaxItems finalizes a group as soon as it holds this many items.
	// 0 disables the cap.
	MaxItems int `yaml:"max_items" json:"max_items"`
}

// DefaultConfig returns the default aggregation settings.
func DefaultConfig() Config {
	return Config{
		Window:   100 * time.Millisecond,
		MaxItems: 10,
	}
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithIDGenerator replaces the batch id generator.
func WithIDGenerator(f func() string) Option {
	return func(a *Aggregator) { a.newID = f }
}

// WithBaseContext sets the parent context handed to finalize callbacks.
func WithBaseContext(ctx context.Context) Option {
	return func(a *Aggregator) { a.baseCtx = ctx }
}

// groupBuffer holds an open album. It lives in the map only while open and is
// removed before its batch is delivered.
type groupBuffer struct {
	id        string
	items     []types.Item
	watch     *Watch
	armedSize int
	openedAt  time.Time
}

// Aggregator groups items by album id and emits one ordered batch per album.
type Aggregator struct {
	cfg        Config
	detector   *Detector
	clock      Clock
	onFinalize FinalizeFunc
	logger     *zap.Logger
	metrics    *metrics.Collector
	newID      func() string
	baseCtx    context.Context

	mu       sync.Mutex
	groups   map[string]*groupBuffer
	closed   bool
	inflight sync.WaitGroup
}

// New creates an aggregator that calls onFinalize for every completed batch.
func New(cfg Config, onFinalize FinalizeFunc, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:        cfg,
		clock:      SystemClock{},
		onFinalize: onFinalize,
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
		baseCtx:    context.Background(),
		groups:     make(map[string]*groupBuffer),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.detector = NewDetector(cfg.Window, a.clock)
	a.logger = a.logger.With(zap.String("component", "album_aggregator"))
	return a
}

// Submit hands an item to the aggregator. It never blocks on dispatch.
func (a *Aggregator) Submit(item types.Item) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.metrics.RecordAlbumItem(item.Grouped())

	if !item.Grouped() {
		batch := a.newBatch("", types.FinalizeSingle, []types.Item{item})
		a.inflight.Add(1)
		a.mu.Unlock()
		go a.deliver(batch)
		return nil
	}

	buf, ok := a.groups[item.GroupID]
	if !ok {
		buf = &groupBuffer{id: item.GroupID, openedAt: a.clock.Now()}
		a.groups[item.GroupID] = buf
		a.metrics.SetAlbumOpenGroups(len(a.groups))
	}
	buf.items = append(buf.items, item)

	if a.cfg.MaxItems > 0 && len(buf.items) >= a.cfg.MaxItems {
		buf.watch.Stop()
		batch := a.removeLocked(buf, types.FinalizeFull)
		a.inflight.Add(1)
		a.mu.Unlock()
		go a.deliver(batch)
		return nil
	}

	a.armLocked(buf)
	a.mu.Unlock()
	return nil
}

// armLocked (re)starts the quiescence watch for buf. Caller holds a.mu.
func (a *Aggregator) armLocked(buf *groupBuffer) {
	buf.armedSize = len(buf.items)
	buf.watch = a.detector.Observe(buf.watch, func(gen uint64) {
		a.expire(buf, gen)
	})
}

// expire handles a quiescence signal for buf armed at generation gen.
func (a *Aggregator) expire(buf *groupBuffer, gen uint64) {
	a.mu.Lock()

	if cur, ok := a.groups[buf.id]; !ok || cur != buf {
		// Already finalized, cancelled or flushed.
		a.mu.Unlock()
		a.metrics.RecordAlbumStaleSignal("missing")
		return
	}
	if buf.watch.Generation() != gen {
		// A newer watch is pending.
		a.mu.Unlock()
		a.metrics.RecordAlbumStaleSignal("generation")
		return
	}
	if len(buf.items) != buf.armedSize {
		a.armLocked(buf)
		a.mu.Unlock()
		a.metrics.RecordAlbumStaleSignal("size")
		return
	}

	batch := a.removeLocked(buf, types.FinalizeQuiet)
	a.inflight.Add(1)
	a.mu.Unlock()

	go a.deliver(batch)
}

// removeLocked deletes buf from the map and builds its batch. Caller holds a.mu.
func (a *Aggregator) removeLocked(buf *groupBuffer, reason types.FinalizeReason) *types.FinalizedBatch {
	delete(a.groups, buf.id)
	a.metrics.SetAlbumOpenGroups(len(a.groups))

	a.logger.Debug("album finalized",
		zap.String("group_id", buf.id),
		zap.String("reason", string(reason)),
		zap.Int("items", len(buf.items)),
		zap.Duration("open_for", a.clock.Now().Sub(buf.openedAt)),
	)
	return a.newBatch(buf.id, reason, buf.items)
}

func (a *Aggregator) newBatch(groupID string, reason types.FinalizeReason, items []types.Item) *types.FinalizedBatch {
	sorted := make([]types.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	a.metrics.RecordAlbumFinalized(string(reason), len(sorted))
	return &types.FinalizedBatch{
		ID:        a.newID(),
		GroupID:   groupID,
		Reason:    reason,
		CreatedAt: a.clock.Now(),
		Items:     sorted,
	}
}

// deliver runs the finalize callback outside the lock.
func (a *Aggregator) deliver(batch *types.FinalizedBatch) {
	defer a.inflight.Done()

	log := a.logger.With(
		zap.String("batch_id", batch.ID),
		zap.String("group_id", batch.GroupID),
		zap.String("reason", string(batch.Reason)),
		zap.Int("items", batch.Len()),
	)

	defer func() {
		if r := recover(); r != nil {
			a.metrics.RecordAlbumCallbackFailure()
			log.Error("finalize callback panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	ctx := ctxkeys.WithBatchID(a.baseCtx, batch.ID)
	if batch.GroupID != "" {
		ctx = ctxkeys.WithGroupID(ctx, batch.GroupID)
	}

	if err := a.onFinalize(ctx, batch); err != nil {
		a.metrics.RecordAlbumCallbackFailure()
		log.Warn("finalize callback failed", zap.Error(err))
	}
}

// Cancel discards an open group without delivering it.
func (a *Aggregator) Cancel(groupID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.groups[groupID]
	if !ok {
		return false
	}
	buf.watch.Stop()
	delete(a.groups, groupID)
	a.metrics.SetAlbumOpenGroups(len(a.groups))
	a.logger.Debug("album cancelled", zap.String("group_id", groupID), zap.Int("items", len(buf.items)))
	return true
}

// Pending returns the number of open groups.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Close stops accepting items, flushes every open group and waits for all
// in-flight callbacks or for ctx to expire.
func (a *Aggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true

		ids := make([]string, 0, len(a.groups))
		for id := range a.groups {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			buf := a.groups[id]
			buf.watch.Stop()
			batch := a.removeLocked(buf, types.FinalizeFlush)
			a.inflight.Add(1)
			go a.deliver(batch)
		}
		if len(ids) > 0 {
			a.logger.Info("flushed open albums on close", zap.Int("groups", len(ids)))
		}
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for finalize callbacks: %w", ctx.Err())
	}
}
