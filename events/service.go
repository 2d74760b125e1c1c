package events

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"eventify-api/domain"
)

// Store defines the persistence methods the events service needs.
type Store interface {
	ListEvents(ctx context.Context, category string) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, string, error)
	InsertEvent(ctx context.Context, ev domain.Event) error
	UpdateEvent(ctx context.Context, ev domain.Event, etag string) error
	DeleteEvent(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	RemoveRegistration(ctx context.Context, userID, eventID string) error
	EnqueueRepair(ctx context.Context, r domain.Repair) error
}

// Filter restricts a listing. Zero values mean "no constraint"; the
// category "All" is treated as absent.
type Filter struct {
	Search   string
	Category string
	Page     int
	PageSize int
}

const defaultPageSize = 12

// View is an event as returned by the API, organizer resolved.
type View struct {
	domain.Event
	Organizer domain.UserRef `json:"organizerInfo"`
	SpotsLeft int            `json:"spotsLeft"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// ListResult is one page of events plus the pagination envelope.
type ListResult struct {
	Events     []View
	Pagination Pagination
}

// Service owns event CRUD: validation, organizer resolution, and the
// cascade that keeps user membership rows consistent on delete.
type Service struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// NewService creates an events Service.
func NewService(store Store, logger *log.Logger) *Service {
	if store == nil {
		panic("events.NewService: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// List returns events matching the filter, sorted by date ascending.
// The free-text match is a case-insensitive substring test over title or
// description.
func (s *Service) List(ctx context.Context, f Filter) (ListResult, error) {
	category := f.Category
	if category == "All" {
		category = ""
	}
	all, err := s.store.ListEvents(ctx, category)
	if err != nil {
		return ListResult{}, err
	}

	matched := all[:0:0]
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, ev := range all {
		if search != "" &&
			!strings.Contains(strings.ToLower(ev.Title), search) &&
			!strings.Contains(strings.ToLower(ev.Description), search) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Date.Before(matched[j].Date) })

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	total := len(matched)
	pages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	views := make([]View, 0, end-start)
	organizers := map[string]domain.UserRef{}
	for _, ev := range matched[start:end] {
		views = append(views, s.view(ctx, ev, organizers))
	}
	return ListResult{
		Events:     views,
		Pagination: Pagination{Total: total, Page: page, Pages: pages},
	}, nil
}

// Create validates the input and persists a new event owned by organizerID.
func (s *Service) Create(ctx context.Context, in domain.EventInput, organizerID string) (*View, error) {
	ev, verr := in.Validate()
	if verr != nil {
		return nil, verr
	}
	now := s.now().UTC()
	ev.ID = uuid.NewString()
	ev.OrganizerID = organizerID
	ev.Attendees = []domain.Attendee{}
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{"event": ev.ID, "organizer": organizerID}).Info("event created")
	v := s.view(ctx, ev, nil)
	return &v, nil
}

// Update applies a partial edit, re-validating every changed field. The
// write is conditional on the event's ETag so a concurrent registration is
// never overwritten; on conflict the edit is replayed onto the fresh record.
func (s *Service) Update(ctx context.Context, id string, patch domain.EventPatch) (*View, error) {
	for {
		ev, etag, err := s.store.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if verr := patch.Apply(ev); verr != nil {
			return nil, verr
		}
		ev.UpdatedAt = s.now().UTC()
		if err := s.store.UpdateEvent(ctx, *ev, etag); err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				continue
			}
			return nil, err
		}
		s.logger.WithField("event", id).Info("event updated")
		v := s.view(ctx, *ev, nil)
		return &v, nil
	}
}

// Delete removes an event and cascades: every attendee's membership row is
// removed first, from the authoritative attendee list. A row that cannot be
// removed right now goes to the repair queue so the cascade is never lost.
func (s *Service) Delete(ctx context.Context, id string) error {
	ev, _, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	for _, a := range ev.Attendees {
		if err := s.store.RemoveRegistration(ctx, a.UserID, id); err != nil {
			repair := domain.Repair{Op: domain.RepairRemove, UserID: a.UserID, EventID: id}
			if qErr := s.store.EnqueueRepair(ctx, repair); qErr != nil {
				return err
			}
			s.logger.WithFields(log.Fields{"event": id, "user": a.UserID}).
				WithError(err).Error("cascade removal failed, repair queued")
		}
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("event", id).Info("event deleted")
	return nil
}

// view resolves the organizer reference, memoized across one request when a
// cache map is supplied.
func (s *Service) view(ctx context.Context, ev domain.Event, organizers map[string]domain.UserRef) View {
	var ref domain.UserRef
	if organizers != nil {
		if cached, ok := organizers[ev.OrganizerID]; ok {
			ref = cached
		} else {
			ref = s.resolveUser(ctx, ev.OrganizerID)
			organizers[ev.OrganizerID] = ref
		}
	} else {
		ref = s.resolveUser(ctx, ev.OrganizerID)
	}
	return View{Event: ev, Organizer: ref, SpotsLeft: ev.SpotsLeft()}
}

func (s *Service) resolveUser(ctx context.Context, id string) domain.UserRef {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return domain.UserRef{ID: id}
	}
	return domain.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
