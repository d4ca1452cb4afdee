// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

/*
Package types 提供 InteriorLens 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 album、dispatch、
inference、format、bot 与 api 等上层模块提供统一的类型契约。

# 核心类型

  - Item                 — 进入流水线的单条图片消息（不可变）
  - FinalizedBatch       — 聚合完成、有序且不可变的批次，下标即序号
  - ClassificationResult — 单张图片的分类结果或错误
  - BatchResponse        — 与批次一一对应的结果列表及批次元信息
  - Error / ErrorCode    — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
*/
package types
