// =============================================================================
// 📦 InteriorLens 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Bot:       DefaultBotConfig(),
		Dispatch:  DefaultDispatchConfig(),
		Inference: DefaultInferenceConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConns:        0,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultBotConfig 返回默认网关配置
func DefaultBotConfig() BotConfig {
	return BotConfig{
		HTTPPort:      8080,
		MetricsPort:   9092,
		AlbumWindow:   100 * time.Millisecond,
		MaxAlbumItems: 10,
		Workers:       4,
		QueueSize:     64,
		MaxFrameBytes: 16 << 20, // 16 MB
		ReplyTimeout:  10 * time.Second,
	}
}

// DefaultDispatchConfig 返回默认分发配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BackendURL:       "http://localhost:8000",
		Timeout:          30 * time.Second,
		MaxFileSize:      10 << 20, // 10 MB
		MaxItems:         10,
		SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
	}
}

// DefaultInferenceConfig 返回默认推理配置
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		ModelPath:      "models/interior.yaml",
		MaxBatchSize:   10,
		MaxUploadBytes: 110 << 20, // 10 张 10MB 图片 + 表单开销
		DecodeWorkers:  4,
		CacheEnabled:   false,
		CacheTTL:       24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "interiorlens",
		SampleRate:   0.1,
	}
}
