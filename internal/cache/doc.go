// 版权所有 2024 InteriorLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，支持连接池、健康检查、
批量读取与 JSON 序列化。

# 概述

本包封装 go-redis 客户端，为推理结果缓存提供统一的读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与关闭。

# 核心类型

  - Manager：缓存管理器，持有 redis.Client 与配置。
  - Config：地址、认证、连接池、默认过期时间与健康检查间隔。

# 主要能力

  - 基础读写：Set/Delete，Set 的 ttl 为 0 时使用默认过期时间。
  - 批量读取：MGet 一次往返读取整批图片的缓存结果。
  - JSON 写入：SetJSON。
  - 错误判定：关闭后的调用返回 ErrClosed。
*/
package cache
