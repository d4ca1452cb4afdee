// 版权所有 2024 InteriorLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
关闭钩子、连接数限制与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误
传播流程。推理服务的 API 端口、指标端口与聊天网关都通过它运行。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，提供
    Start/Shutdown/WaitForShutdown/OnShutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小、
    优雅关闭超时与最大并发连接数。
  - ShutdownHook：在停止 HTTP 服务前执行的排空函数。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 连接限制：MaxConns > 0 时使用 netutil.LimitListener 限制并发连接。
  - 优雅关闭：先按注册顺序执行钩子，再在超时内排空请求。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM 或 ctx 取消。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
