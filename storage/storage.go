package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"eventify-api/domain"
)

// eventPartition keys every event entity; events are few enough to live in
// one partition and listing stays a single partition scan.
const eventPartition = "event"

// Storage provides access to underlying persistence mechanisms: the events
// and users tables, the per-user registrations table, and the repair queue
// for user-side writes that failed after the event side committed.
type Storage struct {
	events        *aztables.Client
	users         *aztables.Client
	registrations *aztables.Client
	repairQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, eventsTable, usersTable, registrationsTable, repairQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	rq, err := azqueue.NewQueueClientFromConnectionString(connStr, repairQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		events:        svc.NewClient(eventsTable),
		users:         svc.NewClient(usersTable),
		registrations: svc.NewClient(registrationsTable),
		repairQueue:   rq,
	}, nil
}

type eventEntity struct {
	aztables.Entity
	Title       string  `json:"Title"`
	Description string  `json:"Description"`
	Date        string  `json:"Date"`
	Time        string  `json:"Time"`
	Location    string  `json:"Location"`
	Category    string  `json:"Category"`
	Image       string  `json:"Image"`
	Capacity    int     `json:"Capacity"`
	Price       float64 `json:"Price"`
	Organizer   string  `json:"Organizer"`
	Attendees   string  `json:"Attendees"`
	CreatedAt   string  `json:"CreatedAt"`
	UpdatedAt   string  `json:"UpdatedAt"`
}

type userEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Email string `json:"Email"`
	Role  string `json:"Role"`
}

type registrationEntity struct {
	aztables.Entity
	RegisteredAt string `json:"RegisteredAt"`
}

func encodeEvent(ev domain.Event) ([]byte, error) {
	attendees, err := json.Marshal(ev.Attendees)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEntity{
		Entity:      aztables.Entity{PartitionKey: eventPartition, RowKey: ev.ID},
		Title:       ev.Title,
		Description: ev.Description,
		Date:        ev.Date.UTC().Format(time.RFC3339),
		Time:        ev.Time,
		Location:    ev.Location,
		Category:    ev.Category,
		Image:       ev.Image,
		Capacity:    ev.Capacity,
		Price:       ev.Price,
		Organizer:   ev.OrganizerID,
		Attendees:   string(attendees),
		CreatedAt:   ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   ev.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func decodeEvent(data []byte) (domain.Event, error) {
	var ent eventEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Event{}, err
	}
	var attendees []domain.Attendee
	if ent.Attendees != "" {
		if err := json.Unmarshal([]byte(ent.Attendees), &attendees); err != nil {
			return domain.Event{}, err
		}
	}
	date, _ := time.Parse(time.RFC3339, ent.Date)
	created, _ := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, ent.UpdatedAt)
	return domain.Event{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Date:        date,
		Time:        ent.Time,
		Location:    ent.Location,
		Category:    ent.Category,
		Image:       ent.Image,
		Capacity:    ent.Capacity,
		Price:       ent.Price,
		OrganizerID: ent.Organizer,
		Attendees:   attendees,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func infra(op string, err error) error {
	return &domain.InfrastructureError{Op: op, Err: err}
}

// odataString escapes a value for use inside an OData string literal.
func odataString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// GetEvent retrieves an event and the ETag guarding its current version.
func (s *Storage) GetEvent(ctx context.Context, id string) (*domain.Event, string, error) {
	resp, err := s.events.GetEntity(ctx, eventPartition, id, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, "", &domain.NotFoundError{Entity: "event", ID: id}
		}
		return nil, "", infra("get event", err)
	}
	ev, err := decodeEvent(resp.Value)
	if err != nil {
		return nil, "", infra("decode event", err)
	}
	return &ev, string(resp.ETag), nil
}

// ListEvents retrieves all events, optionally restricted to a category at
// the storage layer. Free-text filtering happens above, in the service.
func (s *Storage) ListEvents(ctx context.Context, category string) ([]domain.Event, error) {
	filter := "PartitionKey eq '" + eventPartition + "'"
	if category != "" {
		filter += " and Category eq '" + odataString(category) + "'"
	}
	pager := s.events.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	events := []domain.Event{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, infra("list events", err)
		}
		for _, e := range resp.Entities {
			ev, err := decodeEvent(e)
			if err != nil {
				return nil, infra("decode event", err)
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// InsertEvent persists a brand new event record.
func (s *Storage) InsertEvent(ctx context.Context, ev domain.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return infra("encode event", err)
	}
	if _, err := s.events.AddEntity(ctx, payload, nil); err != nil {
		if statusCode(err) == 409 {
			return domain.ErrConcurrencyConflict
		}
		return infra("insert event", err)
	}
	return nil
}

// UpdateEvent replaces an event conditionally on etag. Returns
// ErrConcurrencyConflict when a newer version is already persisted, which
// makes the capacity check-then-append an atomic unit: callers re-fetch and
// re-run their guards before retrying.
func (s *Storage) UpdateEvent(ctx context.Context, ev domain.Event, etag string) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return infra("encode event", err)
	}
	et := azcore.ETag(etag)
	_, err = s.events.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		switch statusCode(err) {
		case 412, 409:
			return domain.ErrConcurrencyConflict
		case 404:
			return &domain.NotFoundError{Entity: "event", ID: ev.ID}
		}
		return infra("update event", err)
	}
	return nil
}

// DeleteEvent removes the event entity.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	et := azcore.ETagAny
	_, err := s.events.DeleteEntity(ctx, eventPartition, id, &aztables.DeleteEntityOptions{IfMatch: &et})
	if err != nil {
		if statusCode(err) == 404 {
			return &domain.NotFoundError{Entity: "event", ID: id}
		}
		return infra("delete event", err)
	}
	return nil
}

// GetUser retrieves an account record.
func (s *Storage) GetUser(ctx context.Context, id string) (*domain.User, error) {
	resp, err := s.users.GetEntity(ctx, id, id, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, &domain.NotFoundError{Entity: "user", ID: id}
		}
		return nil, infra("get user", err)
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, infra("decode user", err)
	}
	return &domain.User{ID: ent.RowKey, Name: ent.Name, Email: ent.Email, Role: ent.Role}, nil
}

// UpsertUser creates or replaces an account record. Account writes originate
// from the auth service; this path exists for provisioning and tests.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(userEntity{
		Entity: aztables.Entity{PartitionKey: u.ID, RowKey: u.ID},
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
	})
	if err != nil {
		return infra("encode user", err)
	}
	if _, err := s.users.UpsertEntity(ctx, payload, nil); err != nil {
		return infra("upsert user", err)
	}
	return nil
}

// AddRegistration inserts a user-side membership row. Idempotent: an
// existing row is not an error.
func (s *Storage) AddRegistration(ctx context.Context, userID, eventID string, at time.Time) error {
	payload, err := json.Marshal(registrationEntity{
		Entity:       aztables.Entity{PartitionKey: userID, RowKey: eventID},
		RegisteredAt: at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return infra("encode registration", err)
	}
	if _, err := s.registrations.AddEntity(ctx, payload, nil); err != nil {
		if statusCode(err) == 409 {
			return nil
		}
		return infra("add registration", err)
	}
	return nil
}

// RemoveRegistration deletes a user-side membership row. Idempotent: an
// absent row is not an error.
func (s *Storage) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	et := azcore.ETagAny
	_, err := s.registrations.DeleteEntity(ctx, userID, eventID, &aztables.DeleteEntityOptions{IfMatch: &et})
	if err != nil {
		if statusCode(err) == 404 {
			return nil
		}
		return infra("remove registration", err)
	}
	return nil
}

// ListRegistrations retrieves the membership rows for one user.
func (s *Storage) ListRegistrations(ctx context.Context, userID string) ([]domain.Registration, error) {
	filter := "PartitionKey eq '" + odataString(userID) + "'"
	pager := s.registrations.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	regs := []domain.Registration{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, infra("list registrations", err)
		}
		for _, e := range resp.Entities {
			var ent registrationEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, infra("decode registration", err)
			}
			at, _ := time.Parse(time.RFC3339Nano, ent.RegisteredAt)
			regs = append(regs, domain.Registration{EventID: ent.RowKey, RegisteredAt: at})
		}
	}
	return regs, nil
}

// EnqueueRepair sends a repair message for a user-side write that must be
// re-applied.
func (s *Storage) EnqueueRepair(ctx context.Context, r domain.Repair) error {
	data, err := json.Marshal(r)
	if err != nil {
		return infra("encode repair", err)
	}
	if _, err := s.repairQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return infra("enqueue repair", err)
	}
	return nil
}

// DequeueRepair retrieves a single repair message, or nil when the queue is
// empty.
func (s *Storage) DequeueRepair(ctx context.Context) (*domain.QueuedRepair, error) {
	resp, err := s.repairQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, infra("dequeue repair", err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	qr := &domain.QueuedRepair{}
	if msg.MessageText != nil {
		if err := json.Unmarshal([]byte(*msg.MessageText), &qr.Repair); err != nil {
			return nil, infra("decode repair", err)
		}
	}
	if msg.MessageID != nil {
		qr.MessageID = *msg.MessageID
	}
	if msg.PopReceipt != nil {
		qr.PopReceipt = *msg.PopReceipt
	}
	return qr, nil
}

// DeleteRepair removes a processed repair message from the queue.
func (s *Storage) DeleteRepair(ctx context.Context, messageID, popReceipt string) error {
	if _, err := s.repairQueue.DeleteMessage(ctx, messageID, popReceipt, nil); err != nil {
		return infra("delete repair", err)
	}
	return nil
}
