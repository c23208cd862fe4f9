// Package memory 提供按会话隔离的对话记忆。
//
// 每个会话对应一个 Conversation，内部是只追加的有序问答日志。
// Store 负责按会话 ID 查找与淘汰：LocalStore 在进程内以 LRU + 空闲 TTL 管理，
// RedisStore 将日志持久化到 Redis 列表并依赖键过期。
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Turn 一次问答。
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Store 按会话 ID 解析 Conversation。
type Store interface {
	// Get 返回 id 对应的会话，不存在时创建。
	Get(ctx context.Context, id string) (*Conversation, error)
	// Find 返回 id 对应的会话，不存在时返回 ErrSessionNotFound。
	Find(ctx context.Context, id string) (*Conversation, error)
	// Clear 清空 id 的日志，会等待进行中的问答周期结束。未知会话直接忽略。
	Clear(ctx context.Context, id string) error
	// Len 返回本进程持有的存活会话数。
	Len() int
	Close() error
}

type turnLog interface {
	load(ctx context.Context) ([]Turn, error)
	append(ctx context.Context, t Turn) error
	clear(ctx context.Context) error
}

// Conversation 单个会话的有序问答日志。
//
// Lock/Unlock 串行化会话上的整个问答周期；Turns、Append、Clear 单独调用时
// 无需持锁。持有或等待锁的会话不会被 LRU 淘汰。
type Conversation struct {
	id      string
	cycle   sync.Mutex
	holders atomic.Int32
	log     turnLog
}

// NewConversation 创建进程内会话，不注册到任何 Store。
func NewConversation(id string) *Conversation {
	return &Conversation{id: id, log: &sliceLog{}}
}

// ID 返回会话 ID。
func (c *Conversation) ID() string { return c.id }

// Lock 为一个问答周期占用会话。
func (c *Conversation) Lock() {
	c.holders.Add(1)
	c.cycle.Lock()
}

// Unlock 释放会话。
func (c *Conversation) Unlock() {
	c.cycle.Unlock()
	c.holders.Add(-1)
}

// inUse 报告会话是否被持有或有等待者。
func (c *Conversation) inUse() bool { return c.holders.Load() > 0 }

// Turns 返回日志副本，按时间先后排列。
func (c *Conversation) Turns(ctx context.Context) ([]Turn, error) {
	return c.log.load(ctx)
}

// Append 在日志末尾追加一轮。
func (c *Conversation) Append(ctx context.Context, t Turn) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	return c.log.append(ctx, t)
}

// Clear 清空日志。调用方需自行与进行中的周期同步，Store.Clear 会持锁执行。
func (c *Conversation) Clear(ctx context.Context) error {
	return c.log.clear(ctx)
}

// clearLocked 等待当前周期结束后清空日志。
func clearLocked(ctx context.Context, c *Conversation) error {
	c.Lock()
	defer c.Unlock()
	return c.Clear(ctx)
}

type sliceLog struct {
	mu    sync.RWMutex
	turns []Turn
}

func (l *sliceLog) load(_ context.Context) ([]Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out, nil
}

func (l *sliceLog) append(_ context.Context, t Turn) error {
	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.mu.Unlock()
	return nil
}

func (l *sliceLog) clear(_ context.Context) error {
	l.mu.Lock()
	l.turns = nil
	l.mu.Unlock()
	return nil
}
