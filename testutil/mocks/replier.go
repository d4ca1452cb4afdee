// Package mocks 提供测试用的 Mock 实现。
package mocks

import (
	"context"
	"sync"
)

// Reply 是一次被记录的回复
type Reply struct {
	ChatID  int64
	ReplyTo int64
	Text    string
}

// MockReplier 记录所有回复，可注入错误
type MockReplier struct {
	mu      sync.Mutex
	replies []Reply
	err     error
	notify  chan Reply
}

// NewMockReplier 创建 MockReplier；buffer 为通知通道容量
func NewMockReplier(buffer int) *MockReplier {
	return &MockReplier{notify: make(chan Reply, buffer)}
}

// WithError 让后续回复返回错误
func (m *MockReplier) WithError(err error) *MockReplier {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Reply 记录回复
func (m *MockReplier) Reply(ctx context.Context, chatID, replyTo int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	r := Reply{ChatID: chatID, ReplyTo: replyTo, Text: text}
	m.replies = append(m.replies, r)
	select {
	case m.notify <- r:
	default:
	}
	return nil
}

// Replies 返回已记录回复的副本
func (m *MockReplier) Replies() []Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reply, len(m.replies))
	copy(out, m.replies)
	return out
}

// Notify 返回每条回复的通知通道
func (m *MockReplier) Notify() <-chan Reply {
	return m.notify
}
