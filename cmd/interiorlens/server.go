package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/album"
	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/api/handlers"
	"github.com/BaSui01/interiorlens/bot"
	"github.com/BaSui01/interiorlens/config"
	"github.com/BaSui01/interiorlens/dispatch"
	"github.com/BaSui01/interiorlens/inference"
	"github.com/BaSui01/interiorlens/internal/cache"
	"github.com/BaSui01/interiorlens/internal/metrics"
	"github.com/BaSui01/interiorlens/internal/server"
	"github.com/BaSui01/interiorlens/internal/telemetry"
	"github.com/BaSui01/interiorlens/internal/tlsutil"
)

// Role 进程角色
type Role string

const (
	// RoleServe 批量推理服务
	RoleServe Role = "serve"
	// RoleBot 聊天网关
	RoleBot Role = "bot"
)

// skipAuthPaths 不需要 API Key 的探活端点
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 管理一个进程角色下的全部组件：HTTP 服务、Metrics 服务和领域组件
type Server struct {
	cfg    *config.Config
	role   Role
	logger *zap.Logger
	otel   *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler    *handlers.HealthHandler
	metricsCollector *metrics.Collector

	// serve 角色
	cacheManager *cache.Manager
	service      *inference.Service

	// bot 角色
	dispatcher *dispatch.Dispatcher
	gateway    *bot.Gateway
	pipeline   *bot.Pipeline

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, role Role, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		role:   role,
		logger: logger,
		otel:   otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("interiorlens", s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.logger, Version)

	var (
		handler http.Handler
		port    int
		err     error
	)
	switch s.role {
	case RoleServe:
		handler, err = s.initServe()
		port = s.cfg.Server.HTTPPort
	case RoleBot:
		handler, err = s.initBot()
		port = s.cfg.Bot.HTTPPort
	default:
		err = fmt.Errorf("unknown role %q", s.role)
	}
	if err != nil {
		return err
	}

	if err := s.startHTTPServer(handler, port); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	metricsPort := s.cfg.Server.MetricsPort
	if s.role == RoleBot {
		metricsPort = s.cfg.Bot.MetricsPort
	}
	if err := s.startMetricsServer(metricsPort); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("role", string(s.role)),
		zap.Int("http_port", port),
		zap.Int("metrics_port", metricsPort),
	)
	return nil
}

// =============================================================================
// 🔧 serve：批量推理服务
// =============================================================================

func (s *Server) initServe() (http.Handler, error) {
	icfg := s.cfg.Inference

	model := inference.NewLazyModel(func() (inference.Model, error) {
		return inference.LoadLinearModel(icfg.ModelPath)
	})

	opts := []inference.Option{
		inference.WithLogger(s.logger),
		inference.WithMetrics(s.metricsCollector),
	}
	if icfg.CacheEnabled {
		if rc := s.initResultCache(); rc != nil {
			opts = append(opts, inference.WithResultCache(rc))
		}
	}

	s.service = inference.NewService(model, inference.Config{
		MaxBatchSize:  icfg.MaxBatchSize,
		DecodeWorkers: icfg.DecodeWorkers,
	}, opts...)

	// 启动时加载模型，失败则拒绝启动
	if err := s.service.Ready(); err != nil {
		return nil, fmt.Errorf("failed to load model from %s: %w", icfg.ModelPath, err)
	}
	info, _ := s.service.Info()
	s.logger.Info("Model loaded",
		zap.String("path", icfg.ModelPath),
		zap.String("version", info.Version),
		zap.String("backbone", info.Backbone),
		zap.Int("labels", len(info.Labels)),
	)

	s.healthHandler.RegisterCheck(handlers.NewModelHealthCheck(s.service.Ready))
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck(s.cacheManager.Ping))
	}

	classify := handlers.NewClassifyHandler(s.service, icfg.MaxUploadBytes, s.logger)

	mux := http.NewServeMux()
	s.registerHealthRoutes(mux)
	mux.HandleFunc("POST "+api.ClassifyPath, classify.HandleClassify)

	return s.apiChain(mux), nil
}

// initResultCache 连接 Redis；失败时降级为无缓存运行
func (s *Server) initResultCache() *inference.ResultCache {
	rcfg := s.cfg.Redis
	ccfg := cache.DefaultConfig()
	ccfg.Addr = rcfg.Addr
	ccfg.Password = rcfg.Password
	ccfg.DB = rcfg.DB
	ccfg.PoolSize = rcfg.PoolSize
	ccfg.MinIdleConns = rcfg.MinIdleConns
	ccfg.DefaultTTL = s.cfg.Inference.CacheTTL

	mgr, err := cache.NewManager(ccfg, s.logger)
	if err != nil {
		s.logger.Warn("Redis not available, result cache disabled", zap.Error(err))
		return nil
	}
	s.cacheManager = mgr
	return inference.NewResultCache(mgr, s.cfg.Inference.CacheTTL, s.logger, s.metricsCollector)
}

// =============================================================================
// 🤖 bot：聊天网关
// =============================================================================

func (s *Server) initBot() (http.Handler, error) {
	bcfg := s.cfg.Bot
	dcfg := s.cfg.Dispatch

	s.dispatcher = dispatch.New(dispatch.Config{
		BackendURL:       dcfg.BackendURL,
		Timeout:          dcfg.Timeout,
		MaxFileSize:      dcfg.MaxFileSize,
		MaxItems:         dcfg.MaxItems,
		SupportedFormats: dcfg.SupportedFormats,
	}, dispatch.WithLogger(s.logger), dispatch.WithMetrics(s.metricsCollector))

	gcfg := bot.DefaultGatewayConfig()
	if bcfg.MaxFrameBytes > 0 {
		gcfg.MaxFrameBytes = bcfg.MaxFrameBytes
	}
	if bcfg.ReplyTimeout > 0 {
		gcfg.WriteTimeout = bcfg.ReplyTimeout
	}
	gcfg.OriginPatterns = bcfg.AllowedOrigins
	s.gateway = bot.NewGateway(gcfg,
		bot.WithGatewayLogger(s.logger),
		bot.WithGatewayMetrics(s.metricsCollector),
	)

	s.pipeline = bot.NewPipeline(bot.Config{
		Album: album.Config{
			Window:   bcfg.AlbumWindow,
			MaxItems: bcfg.MaxAlbumItems,
		},
		Workers:   bcfg.Workers,
		QueueSize: bcfg.QueueSize,
	}, s.dispatcher, s.gateway,
		bot.WithLogger(s.logger),
		bot.WithMetrics(s.metricsCollector),
	)
	s.gateway.Bind(s.pipeline)

	probe := tlsutil.SecureHTTPClient(5*time.Second, 0)
	s.healthHandler.RegisterCheck(handlers.NewBackendHealthCheck(probe,
		strings.TrimRight(dcfg.BackendURL, "/")+"/healthz"))

	mux := http.NewServeMux()
	s.registerHealthRoutes(mux)

	// websocket 升级需要原始 ResponseWriter，不经过包装写入器的中间件
	mux.Handle(bot.GatewayPath, Chain(s.gateway,
		Recovery(s.logger),
		RequestID(),
		APIKeyAuth(s.cfg.Server.APIKeys, nil, s.logger),
	))

	return s.routeChain(mux), nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) registerHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
}

// apiChain 构建完整的 API 中间件链
func (s *Server) apiChain(h http.Handler) http.Handler {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	return Chain(h,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)
}

// routeChain 网关进程的外层链：websocket 路径直接交给 mux，其余走完整链
func (s *Server) routeChain(mux *http.ServeMux) http.Handler {
	chained := s.apiChain(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == bot.GatewayPath {
			mux.ServeHTTP(w, r)
			return
		}
		chained.ServeHTTP(w, r)
	})
}

func (s *Server) startHTTPServer(handler http.Handler, port int) error {
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", port),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		MaxConns:        s.cfg.Server.MaxConns,
	}
	if s.role == RoleBot {
		// 被劫持的 websocket 连接会继承读写截止时间
		serverConfig.ReadTimeout = 0
		serverConfig.WriteTimeout = 0
	}

	s.httpManager = server.NewManager(string(s.role), handler, serverConfig, s.logger)

	if s.pipeline != nil {
		// 先提交未完成的相册并等待回复发出，再断开网关连接
		s.httpManager.OnShutdown(s.pipeline.Close)
		s.httpManager.OnShutdown(func(context.Context) error {
			s.gateway.Close()
			return nil
		})
	}

	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer(port int) error {
	if port == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", port),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		if err := s.httpManager.WaitForShutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 已关闭时 Shutdown 直接返回
	if s.httpManager != nil {
		errs = append(errs, s.httpManager.Shutdown(ctx))
	}
	if s.metricsManager != nil {
		errs = append(errs, s.metricsManager.Shutdown(ctx))
	}
	if s.cacheManager != nil {
		errs = append(errs, s.cacheManager.Close())
	}
	if s.otel != nil {
		errs = append(errs, s.otel.Shutdown(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Shutdown completed with errors", zap.Error(err))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}
