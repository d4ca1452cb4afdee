// 版权所有 2024 InteriorLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、相册聚合、批次分发、推理、缓存与网关六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离，Record 方法对 nil 接收者
安全，未注入收集器的组件可以直接调用。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 相册指标：提交数、按原因统计的批次数、批大小、打开的分组数、
    被忽略的到期信号、回调失败数。
  - 分发指标：按结果统计的批次数与耗时、本地校验拒绝数。
  - 推理指标：按状态统计的图片数、前向计算批大小与耗时。
  - 缓存与网关指标：命中/未命中、websocket 连接数与帧计数。
*/
package metrics
