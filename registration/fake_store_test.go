package registration

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"eventify-api/domain"
)

// fakeStore is an in-memory Store plus Queue with etag-checked event writes,
// so the optimistic-concurrency path behaves like the real table storage.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]*fakeEvent
	users  map[string]domain.User
	regs   map[string]map[string]time.Time
	queue  []domain.QueuedRepair
	nextID int

	failAddRegistration    bool
	failRemoveRegistration bool
	failEnqueue            bool
}

type fakeEvent struct {
	ev   domain.Event
	etag int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[string]*fakeEvent{},
		users:  map[string]domain.User{},
		regs:   map[string]map[string]time.Time{},
	}
}

func (f *fakeStore) putEvent(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = &fakeEvent{ev: copyEvent(ev), etag: 1}
}

func copyEvent(ev domain.Event) domain.Event {
	out := ev
	out.Attendees = append([]domain.Attendee(nil), ev.Attendees...)
	return out
}

func (f *fakeStore) GetEvent(ctx context.Context, id string) (*domain.Event, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.events[id]
	if !ok {
		return nil, "", &domain.NotFoundError{Entity: "event", ID: id}
	}
	ev := copyEvent(rec.ev)
	return &ev, strconv.Itoa(rec.etag), nil
}

func (f *fakeStore) UpdateEvent(ctx context.Context, ev domain.Event, etag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.events[ev.ID]
	if !ok {
		return &domain.NotFoundError{Entity: "event", ID: ev.ID}
	}
	if strconv.Itoa(rec.etag) != etag {
		return domain.ErrConcurrencyConflict
	}
	rec.ev = copyEvent(ev)
	rec.etag++
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "user", ID: id}
	}
	return &u, nil
}

func (f *fakeStore) AddRegistration(ctx context.Context, userID, eventID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddRegistration {
		return errors.New("registrations table unavailable")
	}
	if f.regs[userID] == nil {
		f.regs[userID] = map[string]time.Time{}
	}
	f.regs[userID][eventID] = at
	return nil
}

func (f *fakeStore) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemoveRegistration {
		return errors.New("registrations table unavailable")
	}
	delete(f.regs[userID], eventID)
	return nil
}

func (f *fakeStore) ListRegistrations(ctx context.Context, userID string) ([]domain.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Registration{}
	for eventID, at := range f.regs[userID] {
		out = append(out, domain.Registration{EventID: eventID, RegisteredAt: at})
	}
	return out, nil
}

func (f *fakeStore) EnqueueRepair(ctx context.Context, r domain.Repair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEnqueue {
		return errors.New("queue unavailable")
	}
	f.nextID++
	f.queue = append(f.queue, domain.QueuedRepair{
		Repair:     r,
		MessageID:  strconv.Itoa(f.nextID),
		PopReceipt: "pr-" + strconv.Itoa(f.nextID),
	})
	return nil
}

func (f *fakeStore) DequeueRepair(ctx context.Context) (*domain.QueuedRepair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	msg := f.queue[0]
	return &msg, nil
}

func (f *fakeStore) DeleteRepair(ctx context.Context, messageID, popReceipt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, msg := range f.queue {
		if msg.MessageID == messageID && msg.PopReceipt == popReceipt {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return nil
		}
	}
	return errors.New("message not found")
}

func (f *fakeStore) attendees(eventID string) []domain.Attendee {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Attendee(nil), f.events[eventID].ev.Attendees...)
}

func (f *fakeStore) hasRegistration(userID, eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.regs[userID][eventID]
	return ok
}

func (f *fakeStore) queueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
