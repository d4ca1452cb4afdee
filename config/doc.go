// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

// Package config 提供 InteriorLens 的配置管理功能。
//
// # 概述
//
// 配置按 默认值 → YAML 文件 → 环境变量 的优先级合并。环境变量
// 以 INTERIORLENS_ 为前缀，按结构体的 env 标签逐级拼接，例如
// INTERIORLENS_BOT_ALBUM_WINDOW=250ms。
//
// # 核心类型
//
//   - Config: 完整配置（server、bot、dispatch、inference、redis、log、telemetry）
//   - Loader: Builder 风格的加载器，支持自定义前缀与验证器
//
// # 主要能力
//
//   - time.Duration 字段按 Go duration 语法解析
//   - 字符串切片字段按逗号分隔解析
//   - Validate 检查端口、超时、批大小等关键参数
package config
