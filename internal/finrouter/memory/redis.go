package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	sessionopts "github.com/kart-io/finrouter/pkg/options/session"
	apierrors "github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/utils/json"
)

// RedisStore 将每个会话保存为 KeyPrefix+id 下的 JSON 列表。
// 每次追加刷新键的 TTL，空闲会话由 Redis 过期。
// 会话句柄在本地缓存，同一进程内共享会话锁。
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	h      *handles
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 创建基于 Redis 的会话存储。
func NewRedisStore(client goredis.UniversalClient, opts *sessionopts.Options) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: opts.KeyPrefix,
		ttl:    opts.TTL,
	}
	s.h = newHandles(opts.MaxSessions, opts.TTL, func(id string) turnLog {
		return &redisLog{client: client, key: s.key(id), ttl: opts.TTL}
	})
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Get 返回 id 对应的会话，本地句柄不存在时创建。
func (s *RedisStore) Get(_ context.Context, id string) (*Conversation, error) {
	conv, _ := s.h.get(id, true)
	return conv, nil
}

// Find 在本地有句柄或 Redis 中仍有日志时返回会话。
func (s *RedisStore) Find(ctx context.Context, id string) (*Conversation, error) {
	if conv, ok := s.h.get(id, false); ok {
		return conv, nil
	}
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check session %s: %w", id, err)
	}
	if n == 0 {
		return nil, apierrors.ErrSessionNotFound.WithMessagef("session %s not found", id)
	}
	conv, _ := s.h.get(id, true)
	return conv, nil
}

// Clear 删除 id 的 Redis 日志。本地有句柄时先等待进行中的问答结束。
func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if conv, ok := s.h.get(id, false); ok {
		if err := clearLocked(ctx, conv); err != nil {
			return fmt.Errorf("failed to clear session %s: %w", id, err)
		}
		return nil
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", id, err)
	}
	return nil
}

// Len 返回本地存活句柄数。
func (s *RedisStore) Len() int { return s.h.len() }

// Close 不关闭共享的客户端。
func (s *RedisStore) Close() error { return nil }

type redisLog struct {
	client goredis.UniversalClient
	key    string
	ttl    time.Duration
}

func (l *redisLog) load(ctx context.Context) ([]Turn, error) {
	values, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session log: %w", err)
	}
	turns := make([]Turn, 0, len(values))
	for _, v := range values {
		var t Turn
		if err := json.UnmarshalString(v, &t); err != nil {
			logger.Warnw("skipping malformed session turn", "key", l.key, "error", err.Error())
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (l *redisLog) append(ctx context.Context, t Turn) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.key, data)
	if l.ttl > 0 {
		pipe.Expire(ctx, l.key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append session turn: %w", err)
	}
	return nil
}

func (l *redisLog) clear(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}
