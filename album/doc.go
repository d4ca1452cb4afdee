// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

/*
Package album 把并发、乱序到达的聊天图片聚合成相册批次。

# 概述

同一相册（media group）的图片以独立消息的形式到达，聊天平台不会
告知相册何时结束。Aggregator 按分组 ID 缓冲条目，由 Detector 实现
滑动防抖窗口：分组在最后一条消息到达后静默一个窗口即视为完成，
随后被移出缓冲表，并以一个按消息序号排序的 FinalizedBatch 交给回调。

# 核心类型

  - Detector：滑动窗口防抖器，每次到达都会停止旧定时器并以更高的
    代数（generation）重新计时。
  - Watch：一次待触发的静默检查，携带代数与定时器。
  - Aggregator：分组缓冲与一次性提交，单把互斥锁保护缓冲表。
  - Clock / Timer：时间抽象，测试中可以手动推进。

# 并发约定

  - 到期信号在加锁后校验：缓冲仍存在、代数一致、条目数与计时时一致，
    三者都满足才会提交；否则信号被忽略或重新计时。
  - 缓冲在回调执行之前就已移除，之后到达的同组消息会开启新的缓冲。
  - 回调在独立 goroutine 中运行且不持有锁；错误与 panic 只记录不重试。
  - 没有分组 ID 的消息立即以单条批次提交，不经过防抖。
  - MaxItems 达到上限时立即提交；Close 会提交所有未完成的分组。
*/
package album
