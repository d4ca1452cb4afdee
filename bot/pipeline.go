package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/album"
	"github.com/BaSui01/interiorlens/format"
	"github.com/BaSui01/interiorlens/internal/metrics"
	"github.com/BaSui01/interiorlens/internal/pool"
	"github.com/BaSui01/interiorlens/types"
)

// Replier delivers one text as a reply to a chat message.
type Replier interface {
	Reply(ctx context.Context, chatID, replyTo int64, text string) error
}

// Dispatcher classifies a finalized batch. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch *types.FinalizedBatch) (*types.BatchResponse, error)
}

// Config configures the pipeline.
type Config struct {
	Album album.Config
	// Workers bounds concurrent batch processing.
	Workers int
	// QueueSize is the number of batches that may wait for a worker.
	QueueSize int
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		Album:     album.DefaultConfig(),
		Workers:   4,
		QueueSize: 64,
	}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAlbumOptions passes options through to the aggregator.
func WithAlbumOptions(opts ...album.Option) Option {
	return func(p *Pipeline) { p.albumOpts = append(p.albumOpts, opts...) }
}

// Pipeline turns incoming chat items into classification replies:
// aggregator → worker pool → dispatcher → formatter → replier.
type Pipeline struct {
	agg        *album.Aggregator
	workers    *pool.GoroutinePool
	dispatcher Dispatcher
	replier    Replier
	logger     *zap.Logger
	metrics    *metrics.Collector
	albumOpts  []album.Option
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config, d Dispatcher, r Replier, opts ...Option) *Pipeline {
	p := &Pipeline{
		dispatcher: d,
		replier:    r,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "pipeline"))

	p.workers = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: cfg.Workers,
		QueueSize:  cfg.QueueSize,
		PanicHandler: func(r any) {
			p.logger.Error("batch worker panicked", zap.Any("panic", r))
		},
	})

	albumOpts := append([]album.Option{
		album.WithLogger(p.logger),
		album.WithMetrics(p.metrics),
	}, p.albumOpts...)
	p.agg = album.New(cfg.Album, p.onFinalize, albumOpts...)
	return p
}

// Submit hands an item to the aggregator.
func (p *Pipeline) Submit(item types.Item) error {
	return p.agg.Submit(item)
}

// Pending returns the number of open albums.
func (p *Pipeline) Pending() int {
	return p.agg.Pending()
}

// Close flushes open albums, waits for their replies and stops the workers.
func (p *Pipeline) Close(ctx context.Context) error {
	err := p.agg.Close(ctx)
	p.workers.Close()
	return err
}

// onFinalize runs on the aggregator's delivery goroutine and blocks until a
// worker has processed the batch.
func (p *Pipeline) onFinalize(ctx context.Context, batch *types.FinalizedBatch) error {
	return p.workers.SubmitWait(ctx, func(ctx context.Context) error {
		return p.process(ctx, batch)
	})
}

func (p *Pipeline) process(ctx context.Context, batch *types.FinalizedBatch) error {
	resp, err := p.dispatcher.Dispatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("dispatch batch %s: %w", batch.ID, err)
	}

	texts := format.FormatBatch(resp)
	if len(texts) != batch.Len() {
		p.logger.Error("result count does not match batch",
			zap.String("batch_id", batch.ID),
			zap.Int("items", batch.Len()),
			zap.Int("results", len(texts)),
		)
	}

	var errs []error
	for i := 0; i < len(texts) && i < batch.Len(); i++ {
		item := batch.Items[i]
		if err := p.replier.Reply(ctx, item.ChatID, item.Seq, texts[i]); err != nil {
			errs = append(errs, fmt.Errorf("reply to message %d: %w", item.Seq, err))
		}
	}
	return errors.Join(errs...)
}
