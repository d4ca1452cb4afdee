// Package pool 提供有界 goroutine 池，用于限制聊天网关中并发的批次分发数。
//
// Submit 非阻塞入队，队列满时返回 ErrPoolFull；SubmitWait 在队列满时等待，
// 并阻塞直到任务执行完毕。任务 panic 会被恢复并转换为错误。
package pool
