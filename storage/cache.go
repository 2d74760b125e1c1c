package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"eventify-api/domain"
)

type backend interface {
	ListEvents(ctx context.Context, category string) ([]domain.Event, error)
	ListRegistrations(ctx context.Context, userID string) ([]domain.Registration, error)
	InsertEvent(ctx context.Context, ev domain.Event) error
	UpdateEvent(ctx context.Context, ev domain.Event, etag string) error
	DeleteEvent(ctx context.Context, id string) error
	AddRegistration(ctx context.Context, userID, eventID string, at time.Time) error
	RemoveRegistration(ctx context.Context, userID, eventID string) error
}

// Cache wraps a Storage instance with Redis-backed caching for the two list
// reads. Event mutations evict every event-list key (the category set is
// fixed, so the key set is bounded); registration changes additionally evict
// the affected user's key. GetEvent is never cached: the registration
// service needs a fresh ETag for its conditional writes.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) ListEvents(ctx context.Context, category string) ([]domain.Event, error) {
	key := eventsCacheKey(category)
	if events, ok := c.loadEventsFromCache(ctx, key); ok {
		return events, nil
	}

	events, err := c.base.ListEvents(ctx, category)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, events)
	return events, nil
}

func (c *Cache) ListRegistrations(ctx context.Context, userID string) ([]domain.Registration, error) {
	key := registrationsCacheKey(userID)
	if regs, ok := c.loadRegistrationsFromCache(ctx, key); ok {
		return regs, nil
	}

	regs, err := c.base.ListRegistrations(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, regs)
	return regs, nil
}

func (c *Cache) InsertEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.InsertEvent(ctx, ev); err != nil {
		return err
	}
	c.evictEvents(ctx)
	return nil
}

func (c *Cache) UpdateEvent(ctx context.Context, ev domain.Event, etag string) error {
	if err := c.base.UpdateEvent(ctx, ev, etag); err != nil {
		return err
	}
	c.evictEvents(ctx)
	return nil
}

func (c *Cache) DeleteEvent(ctx context.Context, id string) error {
	if err := c.base.DeleteEvent(ctx, id); err != nil {
		return err
	}
	c.evictEvents(ctx)
	return nil
}

func (c *Cache) AddRegistration(ctx context.Context, userID, eventID string, at time.Time) error {
	if err := c.base.AddRegistration(ctx, userID, eventID, at); err != nil {
		return err
	}
	c.evictUser(ctx, userID)
	return nil
}

func (c *Cache) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	if err := c.base.RemoveRegistration(ctx, userID, eventID); err != nil {
		return err
	}
	c.evictUser(ctx, userID)
	return nil
}

func (c *Cache) loadEventsFromCache(ctx context.Context, key string) ([]domain.Event, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return events, true
}

func (c *Cache) loadRegistrationsFromCache(ctx context.Context, key string) ([]domain.Registration, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var regs []domain.Registration
	if err := json.Unmarshal(data, &regs); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return regs, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evictEvents(ctx context.Context) {
	if c.redis == nil {
		return
	}
	keys := make([]string, 0, len(domain.Categories)+1)
	keys = append(keys, eventsCacheKey(""))
	for _, cat := range domain.Categories {
		keys = append(keys, eventsCacheKey(cat))
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) evictUser(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, registrationsCacheKey(userID)).Result()
}

func eventsCacheKey(category string) string {
	return "events:" + category
}

func registrationsCacheKey(userID string) string {
	return "regs:" + userID
}
