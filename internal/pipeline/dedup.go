package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet is the identity memory of one crawl run. Add is an atomic
// check-and-insert: it reports true only for the first caller with a key.
type SeenSet interface {
	Add(ctx context.Context, key string) (bool, error)
}

type MemorySeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{seen: make(map[string]struct{})}
}

func (s *MemorySeenSet) Add(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

func (s *MemorySeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// RedisSeenSet shares one run's identities between processes. The set
// expires ttl after the last insert.
type RedisSeenSet struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisSeenSet(client redis.Cmdable, prefix, runID string, ttl time.Duration) *RedisSeenSet {
	if prefix == "" {
		prefix = "catalog-scraper"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSeenSet{
		client: client,
		key:    fmt.Sprintf("%s:seen:%s", prefix, runID),
		ttl:    ttl,
	}
}

func (s *RedisSeenSet) Key() string {
	return s.key
}

func (s *RedisSeenSet) Add(ctx context.Context, key string) (bool, error) {
	pipe := s.client.TxPipeline()
	added := pipe.SAdd(ctx, s.key, key)
	pipe.Expire(ctx, s.key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis seen-set add: %w", err)
	}
	return added.Val() == 1, nil
}
