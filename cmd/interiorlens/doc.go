// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

/*
Package main 提供 InteriorLens 的程序入口。

# 概述

cmd/interiorlens 用同一个二进制提供两个进程角色：serve 启动批量推理服务
（POST /classify_batch），bot 启动聊天网关（websocket /ws），把相册聚合、
批量分发与结果格式化串成完整链路。程序支持 YAML 配置文件与环境变量覆盖、
结构化日志（zap）、Prometheus 指标与 OpenTelemetry 追踪。

# 核心类型

  - Server      — 按角色装配组件，管理 HTTP、Metrics 双端口及优雅关闭
  - Role        — 进程角色：serve / bot
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、bot、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、RateLimiter（基于 IP）、APIKeyAuth
  - serve 启动时加载模型，加载失败拒绝启动；可选 Redis 结果缓存
  - bot 的 /ws 路径只挂不包装 ResponseWriter 的中间件，保证连接可被劫持
  - 优雅关闭：信号监听 → 提交未完成相册并等待回复 → 关闭网关 → 关闭 HTTP
    → 关闭 Metrics → 关闭缓存与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
