// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

/*
Package bot 把聊天传输适配器接入相册聚合与批量分类流水线。

# 概述

适配器通过 websocket（/ws）推送图片消息帧，Gateway 把每一帧转换为
types.Item 交给 Pipeline。Pipeline 由 album.Aggregator 聚合相册，
完成的批次在有界 goroutine 池中依次经过 Dispatcher、format 与 Replier，
每条结果作为对原消息（相同下标的条目）的回复发出。

# 核心类型

  - Pipeline：聚合器 → 工作池 → 分发 → 格式化 → 回复。
  - Gateway：websocket 端点，同时实现 Replier，回复发往该会话最近一次
    发送消息的连接。
  - Replier / Dispatcher / Submitter：组件之间的窄接口，便于测试替换。

# 帧格式

入站：{"chat_id","message_id","media_group_id","file_name","mime_type","data"}，
data 为 base64。出站：{"chat_id","reply_to_message_id","text"}。
*/
package bot
