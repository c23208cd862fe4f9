package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
)

type entry struct {
	id       string
	conv     *Conversation
	lastUsed time.Time
	element  *list.Element
}

// handles 会话句柄的 LRU，带空闲过期。
//
// 被占用的会话（持有或等待 Conversation 锁）既不淘汰也不过期，
// 全部被占用时会话数可以暂时超过 capacity。
type handles struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry
	order    *list.List
	now      func() time.Time
	newLog   func(id string) turnLog
}

func newHandles(capacity int, ttl time.Duration, newLog func(id string) turnLog) *handles {
	return &handles{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry),
		order:    list.New(),
		now:      time.Now,
		newLog:   newLog,
	}
}

func (h *handles) expired(ent *entry, now time.Time) bool {
	return h.ttl > 0 && now.Sub(ent.lastUsed) > h.ttl && !ent.conv.inUse()
}

func (h *handles) get(id string, create bool) (*Conversation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if ent, ok := h.items[id]; ok {
		if !h.expired(ent, now) {
			ent.lastUsed = now
			h.order.MoveToFront(ent.element)
			return ent.conv, true
		}
		h.removeEntry(ent)
	}
	if !create {
		return nil, false
	}

	for h.capacity > 0 && len(h.items) >= h.capacity {
		if !h.evictOldest() {
			break
		}
	}
	ent := &entry{
		id:       id,
		conv:     &Conversation{id: id, log: h.newLog(id)},
		lastUsed: now,
	}
	ent.element = h.order.PushFront(ent)
	h.items[id] = ent
	return ent.conv, true
}

func (h *handles) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for e := h.order.Back(); e != nil; {
		prev := e.Prev()
		if ent := e.Value.(*entry); h.expired(ent, now) {
			h.removeEntry(ent)
		}
		e = prev
	}
	return len(h.items)
}

// evictOldest 淘汰最久未用且未被占用的会话，没有可淘汰项时返回 false。
func (h *handles) evictOldest() bool {
	for e := h.order.Back(); e != nil; e = e.Prev() {
		if ent := e.Value.(*entry); !ent.conv.inUse() {
			h.removeEntry(ent)
			return true
		}
	}
	return false
}

func (h *handles) removeEntry(ent *entry) {
	h.order.Remove(ent.element)
	delete(h.items, ent.id)
}

// LocalStore 在进程内保存会话。超过 maxSessions 时淘汰最久未用的会话，
// 空闲超过 ttl 的会话过期。
type LocalStore struct {
	h *handles
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore 创建进程内会话存储。
func NewLocalStore(maxSessions int, ttl time.Duration) *LocalStore {
	return &LocalStore{
		h: newHandles(maxSessions, ttl, func(string) turnLog { return &sliceLog{} }),
	}
}

// Get 返回 id 对应的会话，不存在时创建。
func (s *LocalStore) Get(_ context.Context, id string) (*Conversation, error) {
	conv, _ := s.h.get(id, true)
	return conv, nil
}

// Find 返回 id 对应的会话。
func (s *LocalStore) Find(_ context.Context, id string) (*Conversation, error) {
	if conv, ok := s.h.get(id, false); ok {
		return conv, nil
	}
	return nil, apierrors.ErrSessionNotFound.WithMessagef("session %s not found", id)
}

// Clear 等待进行中的问答结束后清空 id 的日志。
func (s *LocalStore) Clear(ctx context.Context, id string) error {
	if conv, ok := s.h.get(id, false); ok {
		return clearLocked(ctx, conv)
	}
	return nil
}

// Len 返回存活会话数。
func (s *LocalStore) Len() int { return s.h.len() }

// Close 无操作。
func (s *LocalStore) Close() error { return nil }
