// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，
// 组件在未注入收集器时可以直接调用。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 相册聚合指标
	albumItemsTotal      *prometheus.CounterVec
	albumBatchesTotal    *prometheus.CounterVec
	albumBatchSize       prometheus.Histogram
	albumOpenGroups      prometheus.Gauge
	albumStaleSignals    *prometheus.CounterVec
	albumCallbackFailure prometheus.Counter

	// 分发指标
	dispatchTotal         *prometheus.CounterVec
	dispatchDuration      *prometheus.HistogramVec
	dispatchItemsRejected *prometheus.CounterVec

	// 推理指标
	inferenceImagesTotal   *prometheus.CounterVec
	inferenceBatchSize     prometheus.Histogram
	inferenceForwardTiming prometheus.Histogram

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 网关指标
	gatewayConnections prometheus.Gauge
	gatewayFrames      *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 相册聚合指标
	c.albumItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "album",
			Name:      "items_total",
			Help:      "Total number of items submitted to the aggregator",
		},
		[]string{"grouped"},
	)

	c.albumBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "album",
			Name:      "batches_finalized_total",
			Help:      "Total number of finalized batches by reason",
		},
		[]string{"reason"},
	)

	c.albumBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "album",
			Name:      "batch_size",
			Help:      "Number of items per finalized batch",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 16},
		},
	)

	c.albumOpenGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "album",
			Name:      "open_groups",
			Help:      "Number of album groups currently buffering",
		},
	)

	c.albumStaleSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "album",
			Name:      "stale_signals_total",
			Help:      "Quiescence signals ignored because the group changed",
		},
		[]string{"kind"}, // kind: generation, size, missing
	)

	c.albumCallbackFailure = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "album",
			Name:      "finalize_callback_failures_total",
			Help:      "Finalize callbacks that returned an error or panicked",
		},
	)

	// 分发指标
	c.dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Total number of dispatched batches by outcome",
		},
		[]string{"outcome"},
	)

	c.dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Batch dispatch round-trip duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	c.dispatchItemsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "items_rejected_total",
			Help:      "Items rejected by local validation",
		},
		[]string{"code"},
	)

	// 推理指标
	c.inferenceImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "images_total",
			Help:      "Total number of images processed by status",
		},
		[]string{"status"}, // status: ok, decode_error, inference_error, cached
	)

	c.inferenceBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "batch_size",
			Help:      "Number of images per forward pass",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 16},
		},
	)

	c.inferenceForwardTiming = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "forward_duration_seconds",
			Help:      "Model forward pass duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 网关指标
	c.gatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections",
		},
	)

	c.gatewayFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Websocket frames by direction and status",
		},
		[]string{"direction", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🖼️ 相册聚合指标记录
// =============================================================================

// RecordAlbumItem 记录一次提交
func (c *Collector) RecordAlbumItem(grouped bool) {
	if c == nil {
		return
	}
	c.albumItemsTotal.WithLabelValues(strconv.FormatBool(grouped)).Inc()
}

// RecordAlbumFinalized 记录一次批次提交
func (c *Collector) RecordAlbumFinalized(reason string, size int) {
	if c == nil {
		return
	}
	c.albumBatchesTotal.WithLabelValues(reason).Inc()
	c.albumBatchSize.Observe(float64(size))
}

// SetAlbumOpenGroups 设置当前打开的分组数
func (c *Collector) SetAlbumOpenGroups(n int) {
	if c == nil {
		return
	}
	c.albumOpenGroups.Set(float64(n))
}

// RecordAlbumStaleSignal 记录被忽略的到期信号
func (c *Collector) RecordAlbumStaleSignal(kind string) {
	if c == nil {
		return
	}
	c.albumStaleSignals.WithLabelValues(kind).Inc()
}

// RecordAlbumCallbackFailure 记录回调失败
func (c *Collector) RecordAlbumCallbackFailure() {
	if c == nil {
		return
	}
	c.albumCallbackFailure.Inc()
}

// =============================================================================
// 🚚 分发指标记录
// =============================================================================

// RecordDispatch 记录一次批次分发
func (c *Collector) RecordDispatch(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(outcome).Inc()
	c.dispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordItemRejected 记录本地校验拒绝
func (c *Collector) RecordItemRejected(code string) {
	if c == nil {
		return
	}
	c.dispatchItemsRejected.WithLabelValues(code).Inc()
}

// =============================================================================
// 🧠 推理指标记录
// =============================================================================

// RecordInferenceImages 记录按状态分类的图片数
func (c *Collector) RecordInferenceImages(status string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.inferenceImagesTotal.WithLabelValues(status).Add(float64(n))
}

// RecordForward 记录一次前向计算
func (c *Collector) RecordForward(batchSize int, duration time.Duration) {
	if c == nil {
		return
	}
	c.inferenceBatchSize.Observe(float64(batchSize))
	c.inferenceForwardTiming.Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔌 网关指标记录
// =============================================================================

// AddGatewayConnections 调整 websocket 连接数
func (c *Collector) AddGatewayConnections(delta int) {
	if c == nil {
		return
	}
	c.gatewayConnections.Add(float64(delta))
}

// RecordGatewayFrame 记录网关帧
func (c *Collector) RecordGatewayFrame(direction, status string) {
	if c == nil {
		return
	}
	c.gatewayFrames.WithLabelValues(direction, status).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
