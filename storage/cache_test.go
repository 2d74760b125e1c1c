package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"eventify-api/domain"
)

type stubBackend struct {
	listEventsFn         func(ctx context.Context, category string) ([]domain.Event, error)
	listRegistrationsFn  func(ctx context.Context, userID string) ([]domain.Registration, error)
	insertEventFn        func(ctx context.Context, ev domain.Event) error
	updateEventFn        func(ctx context.Context, ev domain.Event, etag string) error
	deleteEventFn        func(ctx context.Context, id string) error
	addRegistrationFn    func(ctx context.Context, userID, eventID string, at time.Time) error
	removeRegistrationFn func(ctx context.Context, userID, eventID string) error
}

func (s *stubBackend) ListEvents(ctx context.Context, category string) ([]domain.Event, error) {
	if s.listEventsFn == nil {
		return nil, errors.New("unexpected ListEvents call")
	}
	return s.listEventsFn(ctx, category)
}

func (s *stubBackend) ListRegistrations(ctx context.Context, userID string) ([]domain.Registration, error) {
	if s.listRegistrationsFn == nil {
		return nil, errors.New("unexpected ListRegistrations call")
	}
	return s.listRegistrationsFn(ctx, userID)
}

func (s *stubBackend) InsertEvent(ctx context.Context, ev domain.Event) error {
	if s.insertEventFn == nil {
		return errors.New("unexpected InsertEvent call")
	}
	return s.insertEventFn(ctx, ev)
}

func (s *stubBackend) UpdateEvent(ctx context.Context, ev domain.Event, etag string) error {
	if s.updateEventFn == nil {
		return errors.New("unexpected UpdateEvent call")
	}
	return s.updateEventFn(ctx, ev, etag)
}

func (s *stubBackend) DeleteEvent(ctx context.Context, id string) error {
	if s.deleteEventFn == nil {
		return errors.New("unexpected DeleteEvent call")
	}
	return s.deleteEventFn(ctx, id)
}

func (s *stubBackend) AddRegistration(ctx context.Context, userID, eventID string, at time.Time) error {
	if s.addRegistrationFn == nil {
		return errors.New("unexpected AddRegistration call")
	}
	return s.addRegistrationFn(ctx, userID, eventID, at)
}

func (s *stubBackend) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	if s.removeRegistrationFn == nil {
		return errors.New("unexpected RemoveRegistration call")
	}
	return s.removeRegistrationFn(ctx, userID, eventID)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListEventsMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	expected := []domain.Event{{ID: "ev-1", Title: "Go Meetup", Category: "Technology"}}

	var calls int
	cache := NewCache(&stubBackend{
		listEventsFn: func(ctx context.Context, category string) ([]domain.Event, error) {
			calls++
			if category != "Technology" {
				t.Fatalf("unexpected category: %s", category)
			}
			return append([]domain.Event(nil), expected...), nil
		},
	}, client, time.Minute)

	got, err := cache.ListEvents(ctx, "Technology")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected events: %#v", got)
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
	if ttl := mr.TTL(eventsCacheKey("Technology")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListEvents(ctx, "Technology")
	if err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached events: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("cached read hit the backend, calls=%d", calls)
	}
}

func TestCacheEventMutationsEvict(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	var listCalls int
	cache := NewCache(&stubBackend{
		listEventsFn: func(ctx context.Context, category string) ([]domain.Event, error) {
			listCalls++
			return []domain.Event{}, nil
		},
		insertEventFn: func(ctx context.Context, ev domain.Event) error { return nil },
		updateEventFn: func(ctx context.Context, ev domain.Event, etag string) error { return nil },
		deleteEventFn: func(ctx context.Context, id string) error { return nil },
	}, client, time.Minute)

	warm := func() {
		if _, err := cache.ListEvents(ctx, ""); err != nil {
			t.Fatalf("warm list: %v", err)
		}
		if _, err := cache.ListEvents(ctx, "Technology"); err != nil {
			t.Fatalf("warm category list: %v", err)
		}
	}

	warm()
	if listCalls != 2 {
		t.Fatalf("expected 2 backend calls after warm, got %d", listCalls)
	}

	if err := cache.InsertEvent(ctx, domain.Event{ID: "ev-1", Category: "Technology"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	warm()
	if listCalls != 4 {
		t.Fatalf("insert did not evict list keys, calls=%d", listCalls)
	}

	if err := cache.UpdateEvent(ctx, domain.Event{ID: "ev-1"}, "1"); err != nil {
		t.Fatalf("update: %v", err)
	}
	warm()
	if listCalls != 6 {
		t.Fatalf("update did not evict list keys, calls=%d", listCalls)
	}

	if err := cache.DeleteEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	warm()
	if listCalls != 8 {
		t.Fatalf("delete did not evict list keys, calls=%d", listCalls)
	}
}

func TestCacheRegistrationsEvictPerUser(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	calls := map[string]int{}
	cache := NewCache(&stubBackend{
		listRegistrationsFn: func(ctx context.Context, userID string) ([]domain.Registration, error) {
			calls[userID]++
			return []domain.Registration{}, nil
		},
		addRegistrationFn:    func(ctx context.Context, userID, eventID string, at time.Time) error { return nil },
		removeRegistrationFn: func(ctx context.Context, userID, eventID string) error { return nil },
	}, client, time.Minute)

	for _, user := range []string{"a", "b"} {
		if _, err := cache.ListRegistrations(ctx, user); err != nil {
			t.Fatalf("warm %s: %v", user, err)
		}
	}

	if err := cache.AddRegistration(ctx, "a", "ev-1", time.Now()); err != nil {
		t.Fatalf("add registration: %v", err)
	}
	for _, user := range []string{"a", "b"} {
		if _, err := cache.ListRegistrations(ctx, user); err != nil {
			t.Fatalf("reread %s: %v", user, err)
		}
	}
	if calls["a"] != 2 {
		t.Fatalf("user a key not evicted, calls=%d", calls["a"])
	}
	if calls["b"] != 1 {
		t.Fatalf("user b key should be untouched, calls=%d", calls["b"])
	}

	if err := cache.RemoveRegistration(ctx, "a", "ev-1"); err != nil {
		t.Fatalf("remove registration: %v", err)
	}
	if _, err := cache.ListRegistrations(ctx, "a"); err != nil {
		t.Fatalf("reread after remove: %v", err)
	}
	if calls["a"] != 3 {
		t.Fatalf("remove did not evict user a key, calls=%d", calls["a"])
	}
}

func TestCacheBackendErrorNotCached(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	var calls int
	backendErr := errors.New("storage down")
	cache := NewCache(&stubBackend{
		listEventsFn: func(ctx context.Context, category string) ([]domain.Event, error) {
			calls++
			if calls == 1 {
				return nil, backendErr
			}
			return []domain.Event{{ID: "ev-1"}}, nil
		},
	}, client, time.Minute)

	if _, err := cache.ListEvents(ctx, ""); !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	got, err := cache.ListEvents(ctx, "")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected recovery on retry, got %#v", got)
	}
}
