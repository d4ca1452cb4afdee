package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/interiorlens/internal/metrics"
	"github.com/BaSui01/interiorlens/internal/telemetry"
	"github.com/BaSui01/interiorlens/types"
)

// MsgInferenceFailed is the per-item message when the forward pass fails.
const MsgInferenceFailed = "Inference failed. Please try again later"

// MsgBatchLimit renders the per-item message for images past the batch cap.
func MsgBatchLimit(limit int) string {
	return fmt.Sprintf("Too many images in one request. Maximum: %d", limit)
}

// Image is one uploaded file.
type Image struct {
	Name    string
	Payload []byte
}

// Config configures the service.
type Config struct {
	// MaxBatchSize caps images per call; extra images get an error result.
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`
	// DecodeWorkers bounds concurrent decoding.
	DecodeWorkers int `yaml:"decode_workers" json:"decode_workers"`
}

// DefaultConfig returns the default service settings.
func DefaultConfig() Config {
	return Config{MaxBatchSize: 10, DecodeWorkers: 4}
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithResultCache enables the prediction cache.
func WithResultCache(c *ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

// Service classifies batches of images with a single forward pass per call.
type Service struct {
	model   *LazyModel
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	cache   *ResultCache

	forwardMu sync.Mutex
}

// NewService creates a service around a lazily loaded model.
func NewService(model *LazyModel, cfg Config, opts ...Option) *Service {
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = 1
	}
	s := &Service{
		model:  model,
		cfg:    cfg,
		logger: zap.NewNop(),
		tracer: telemetry.Tracer("inference"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "inference"))
	return s
}

// Info returns the model description, loading the model if needed.
func (s *Service) Info() (ModelInfo, error) {
	m, err := s.model.Get()
	if err != nil {
		return ModelInfo{}, err
	}
	return m.Info(), nil
}

// Ready reports whether the model is loaded and usable.
func (s *Service) Ready() error {
	_, err := s.model.Get()
	return err
}

// Infer returns one result per image, in input order. Per-image problems are
// reported in the result; the error is non-nil only when the whole call cannot
// proceed (no images, model unavailable, context cancelled).
func (s *Service) Infer(ctx context.Context, images []Image) ([]types.ClassificationResult, error) {
	if len(images) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no images").WithHTTPStatus(400)
	}
	model, err := s.model.Get()
	if err != nil {
		return nil, err
	}
	info := model.Info()

	ctx, span := s.tracer.Start(ctx, "inference.batch", trace.WithAttributes(
		attribute.Int("batch.images", len(images)),
		attribute.String("model.version", info.Version),
	))
	defer span.End()

	results := make([]types.ClassificationResult, len(images))
	pending := make([]int, 0, len(images))
	for i, img := range images {
		if s.cfg.MaxBatchSize > 0 && i >= s.cfg.MaxBatchSize {
			results[i] = types.ErrorResult(i, img.Name, MsgBatchLimit(s.cfg.MaxBatchSize))
			continue
		}
		pending = append(pending, i)
	}

	var keys []string
	if s.cache != nil {
		pending, keys = s.fromCache(ctx, info, images, pending, results)
	}

	decoded, err := s.decode(ctx, info, images, pending, results)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode cancelled")
		return nil, err
	}

	if len(decoded) > 0 {
		s.classify(ctx, model, info, images, pending, keys, decoded, results)
	}

	var ok, failed int
	for _, r := range results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	s.metrics.RecordInferenceImages("ok", ok)
	s.metrics.RecordInferenceImages("error", failed)
	span.SetAttributes(attribute.Int("batch.failed", failed))
	return results, nil
}

// fromCache fills cached predictions and returns the indexes still pending
// with their cache keys.
func (s *Service) fromCache(ctx context.Context, info ModelInfo, images []Image, pending []int, results []types.ClassificationResult) ([]int, []string) {
	keys := make([]string, len(pending))
	for j, i := range pending {
		keys[j] = s.cache.Key(info.Version, images[i].Payload)
	}
	hits := s.cache.Lookup(ctx, keys)

	rest := make([]int, 0, len(pending))
	restKeys := make([]string, 0, len(pending))
	for j, i := range pending {
		if p := hits[j]; p != nil {
			results[i] = resultOf(i, images[i].Name, *p)
			continue
		}
		rest = append(rest, i)
		restKeys = append(restKeys, keys[j])
	}
	return rest, restKeys
}

// decode preprocesses pending images concurrently. The returned map holds the
// CHW data by image index; decode failures are written to results.
func (s *Service) decode(ctx context.Context, info ModelInfo, images []Image, pending []int, results []types.ClassificationResult) (map[int][]float32, error) {
	size := info.InputSize
	buffers := make([][]float32, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DecodeWorkers)
	for j, i := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			buf := make([]float32, Channels*size*size)
			if err := Preprocess(images[i].Payload, size, buf); err != nil {
				s.logger.Debug("image decode failed",
					zap.Int("index", i),
					zap.String("name", images[i].Name),
					zap.Error(err),
				)
				results[i] = types.ErrorResult(i, images[i].Name, DecodeErrorMessage())
				return nil
			}
			buffers[j] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int][]float32, len(pending))
	for j, i := range pending {
		if buffers[j] != nil {
			out[i] = buffers[j]
		}
	}
	return out, nil
}

// classify stacks decoded images into one tensor and runs a single forward.
func (s *Service) classify(ctx context.Context, model Model, info ModelInfo, images []Image, pending []int, keys []string, decoded map[int][]float32, results []types.ClassificationResult) {
	size := info.InputSize
	order := make([]int, 0, len(decoded))
	keyOf := make(map[int]string, len(decoded))
	for j, i := range pending {
		if _, ok := decoded[i]; ok {
			order = append(order, i)
			if keys != nil {
				keyOf[i] = keys[j]
			}
		}
	}

	input := NewTensor(len(order), Channels, size, size)
	for row, i := range order {
		copy(input.Row(row), decoded[i])
	}

	start := time.Now()
	logits, err := s.forward(ctx, model, input)
	s.metrics.RecordForward(len(order), time.Since(start))
	if err == nil && len(logits) != len(order) {
		err = fmt.Errorf("model returned %d rows for %d images", len(logits), len(order))
	}
	if err == nil {
		for row := range logits {
			if len(logits[row]) != len(info.Labels) {
				err = fmt.Errorf("model returned %d logits, want %d", len(logits[row]), len(info.Labels))
				break
			}
		}
	}
	if err != nil {
		s.logger.Error("forward pass failed", zap.Int("batch_size", len(order)), zap.Error(err))
		for _, i := range order {
			results[i] = types.ErrorResult(i, images[i].Name, MsgInferenceFailed)
		}
		return
	}

	for row, i := range order {
		if !Finite(logits[row]) {
			s.logger.Warn("non-finite logits", zap.Int("index", i), zap.String("item", images[i].Name))
			results[i] = types.ErrorResult(i, images[i].Name, MsgInferenceFailed)
			continue
		}
		p := Predict(info.Labels, logits[row])
		results[i] = resultOf(i, images[i].Name, p)
		if s.cache != nil {
			s.cache.Store(ctx, keyOf[i], p)
		}
	}
}

func (s *Service) forward(ctx context.Context, model Model, input *Tensor) (logits [][]float32, err error) {
	if !isReentrant(model) {
		s.forwardMu.Lock()
		defer s.forwardMu.Unlock()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return model.Forward(ctx, input)
}

func resultOf(index int, name string, p Prediction) types.ClassificationResult {
	return types.ClassificationResult{
		Index:          index,
		ItemName:       name,
		PredictedLabel: p.Label,
		TopConfidence:  p.Confidence,
		Confidences:    p.Confidences,
	}
}
