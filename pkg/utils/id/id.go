// Package id 生成 finrouter 使用的标识符。
//
// 索引代次（generation）使用单调 ULID，后一次入库的代次总是字典序更大；
// 会话 id 与请求 id 使用随机 UUID v4。
package id

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidUUID = errors.New("invalid UUID format")
	ErrInvalidULID = errors.New("invalid ULID format")
)

// ULIDGenerator yields strictly increasing ULIDs, also within one millisecond.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var generations = NewULIDGenerator()

// NewULID returns the next index generation id.
func NewULID() string { return generations.Generate() }

// NewUUID returns a random v4 UUID.
func NewUUID() string { return uuid.NewString() }

func IsValidUUID(s string) bool { return uuid.Validate(s) == nil }

func IsValidULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// ParseUUID returns s in canonical lower-case form.
func ParseUUID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidUUID
	}
	return u.String(), nil
}

// ParseULID returns s in canonical upper-case form.
func ParseULID(s string) (string, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return "", ErrInvalidULID
	}
	return u.String(), nil
}
