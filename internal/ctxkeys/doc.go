// Package ctxkeys 定义跨包共享的 context 键（请求 ID、批次 ID、相册分组 ID），
// 用于日志与追踪字段的关联。
package ctxkeys
