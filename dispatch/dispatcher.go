package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/internal/metrics"
	"github.com/BaSui01/interiorlens/internal/telemetry"
	"github.com/BaSui01/interiorlens/internal/tlsutil"
	"github.com/BaSui01/interiorlens/types"
)

// ErrEmptyBatch is returned for a batch with no items; nothing is sent.
var ErrEmptyBatch = types.NewError(types.ErrInvalidRequest, "empty batch")

// Config configures the dispatcher.
type Config struct {
	// BackendURL is the base URL of the inference service.
	BackendURL string `yaml:"backend_url" json:"backend_url"`
	// Timeout bounds one round trip, including the response body.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxFileSize is the per-item payload limit in bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
	// MaxItems caps the items sent in one request; 0 disables the cap.
	MaxItems int `yaml:"max_items" json:"max_items"`
	// SupportedFormats lists accepted file extensions.
	SupportedFormats []string `yaml:"supported_formats" json:"supported_formats"`
}

// DefaultConfig returns the default dispatch settings.
func DefaultConfig() Config {
	return Config{
		BackendURL:       "http://localhost:8000",
		Timeout:          30 * time.Second,
		MaxFileSize:      10 << 20,
		MaxItems:         10,
		SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
	}
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher turns a finalized batch into exactly one inference request and
// reassembles per-item results in batch order.
type Dispatcher struct {
	cfg        Config
	validator  *Validator
	client     *Client
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer
}

// New creates a dispatcher.
func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		logger: zap.NewNop(),
		tracer: telemetry.Tracer("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.httpClient == nil {
		// The per-request context carries the deadline; the client timeout
		// only catches a stuck body read past it.
		d.httpClient = tlsutil.SecureHTTPClient(cfg.Timeout+5*time.Second, 0)
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"))
	d.validator = NewValidator(cfg.MaxFileSize, cfg.SupportedFormats)
	d.client = NewClient(cfg.BackendURL, d.httpClient, d.logger)
	return d
}

// Dispatch validates the batch, sends the surviving items in one request and
// returns one result per item in batch order. Network and server failures are
// reported as per-item errors together with the Outcome; the returned error
// is non-nil only for an empty batch.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *types.FinalizedBatch) (*types.BatchResponse, error) {
	if batch.Len() == 0 {
		return nil, ErrEmptyBatch
	}

	start := time.Now()
	n := batch.Len()

	ctx, span := d.tracer.Start(ctx, "dispatch.batch", trace.WithAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.String("batch.group_id", batch.GroupID),
		attribute.Int("batch.items", n),
		attribute.String("dispatch.endpoint", d.client.Endpoint()),
	))
	defer span.End()

	log := d.logger.With(zap.String("batch_id", batch.ID), zap.Int("items", n))

	resp := &types.BatchResponse{
		BatchID: batch.ID,
		Results: make([]types.ClassificationResult, n),
		Meta:    types.BatchMeta{Count: n},
	}

	// Local validation; network holds the sequence indexes actually sent.
	names := make([]string, n)
	network := make([]int, 0, n)
	parts := make([]part, 0, n)
	for i, item := range batch.Items {
		names[i] = DisplayName(i, n, item)
		item.Name = names[i]

		if verr := d.validator.Validate(item); verr != nil {
			resp.Results[i] = types.ErrorResult(i, names[i], verr.Message)
			d.metrics.RecordItemRejected(string(verr.Code))
			continue
		}
		if d.cfg.MaxItems > 0 && len(network) >= d.cfg.MaxItems {
			resp.Results[i] = types.ErrorResult(i, names[i], MsgTooManyItems(d.cfg.MaxItems))
			d.metrics.RecordItemRejected(string(types.ErrInvalidRequest))
			continue
		}

		network = append(network, i)
		parts = append(parts, part{
			name:        names[i],
			contentType: contentType(item),
			payload:     item.Payload,
		})
	}
	span.SetAttributes(attribute.Int("batch.sent", len(network)))

	if len(network) == 0 {
		resp.Outcome = types.OutcomeRejected
		d.finish(resp, start, span, log)
		return resp, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	wire, err := d.client.classify(callCtx, parts)
	if err != nil {
		outcome, msg := failureOf(err)
		resp.Outcome = outcome
		for _, i := range network {
			resp.Results[i] = types.ErrorResult(i, names[i], msg)
		}
		span.RecordError(err)
		log.Warn("batch dispatch failed", zap.String("outcome", string(outcome)), zap.Error(err))
		d.finish(resp, start, span, log)
		return resp, nil
	}

	if len(wire.Results) != len(network) {
		log.Warn("result count mismatch",
			zap.Int("sent", len(network)),
			zap.Int("received", len(wire.Results)),
		)
	}

	// Re-pair by position in the network sub-batch.
	for j, i := range network {
		if j >= len(wire.Results) {
			resp.Results[i] = types.ErrorResult(i, names[i], MsgServerError)
			continue
		}
		r := wire.Results[j].ToResult(i)
		r.ItemName = names[i]
		if r.Error == "" && r.PredictedLabel == "" {
			r = types.ErrorResult(i, names[i], MsgServerError)
		}
		resp.Results[i] = r
	}

	resp.Outcome = types.OutcomeOK
	meta := wire.Meta.ToMeta()
	meta.Count = n
	resp.Meta = meta
	d.finish(resp, start, span, log)
	return resp, nil
}

func (d *Dispatcher) finish(resp *types.BatchResponse, start time.Time, span trace.Span, log *zap.Logger) {
	elapsed := time.Since(start)
	resp.Meta.LatencyMS = elapsed.Milliseconds()
	d.metrics.RecordDispatch(string(resp.Outcome), elapsed)

	span.SetAttributes(
		attribute.String("dispatch.outcome", string(resp.Outcome)),
		attribute.Int("batch.failed", resp.Failed()),
	)
	if resp.Outcome != types.OutcomeOK {
		span.SetStatus(codes.Error, string(resp.Outcome))
	}

	log.Info("batch dispatched",
		zap.String("outcome", string(resp.Outcome)),
		zap.Int("failed", resp.Failed()),
		zap.Duration("latency", elapsed),
	)
}

// failureOf maps a client error to the outcome and the per-item message.
func failureOf(err error) (types.DispatchOutcome, string) {
	switch types.GetErrorCode(err) {
	case types.ErrUpstreamTimeout:
		return types.OutcomeTimeout, MsgTimeout
	case types.ErrUpstreamError:
		return types.OutcomeServerError, MsgServerError
	case types.ErrTransport:
		return types.OutcomeTransportError, MsgNetworkError
	default:
		return types.OutcomeTransportError, MsgGeneral
	}
}

// DisplayName returns the item name, or a generated one for nameless photos:
// image.jpg for a single item, image_<n>.jpg (1-based) inside an album.
func DisplayName(index, total int, item types.Item) string {
	if item.Name != "" {
		return item.Name
	}
	if total == 1 {
		return "image.jpg"
	}
	return fmt.Sprintf("image_%d.jpg", index+1)
}

func contentType(item types.Item) string {
	if item.MIMEType != "" {
		return item.MIMEType
	}
	return SniffContentType(item.Payload)
}
