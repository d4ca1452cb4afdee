// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 InteriorLens HTTP API 的请求处理器实现。

# 概述

handlers 包实现批量分类与健康检查端点，以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - ClassifyHandler  — POST /classify_batch，流式读取 multipart 字段 images
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（模型、Redis、推理后端）

# 主要能力

  - 统一错误格式：WriteError / WriteErrorMessage，附带请求 ID
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 分类响应保持上传顺序，单张图片的失败只体现在对应结果的 error 字段
  - 请求体大小限制：超过上限返回 413
*/
package handlers
