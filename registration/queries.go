package registration

import (
	"context"
	"errors"
	"sort"

	"eventify-api/domain"
)

// Detail is the event detail projection: full event fields plus the
// computed spots-left counter and the viewer's membership. Attendees shadows
// the raw embedded list with display-resolved entries.
type Detail struct {
	domain.Event
	Organizer    domain.UserRef `json:"organizerInfo"`
	Attendees    []RosterEntry  `json:"attendees"`
	SpotsLeft    int            `json:"spotsLeft"`
	IsRegistered bool           `json:"isRegistered"`
}

// RosterEntry is one attendee resolved to display fields.
type RosterEntry struct {
	User         domain.UserRef `json:"user"`
	RegisteredAt string         `json:"registeredAt"`
}

// Roster is the admin view of an event's registrations, in attendee
// insertion order.
type Roster struct {
	EventTitle         string        `json:"eventTitle"`
	Capacity           int           `json:"capacity"`
	TotalRegistrations int           `json:"totalRegistrations"`
	Attendees          []RosterEntry `json:"attendees"`
}

// UserEvent is one entry of a user's registered-events view.
type UserEvent struct {
	domain.Event
	Organizer domain.UserRef `json:"organizerInfo"`
	SpotsLeft int            `json:"spotsLeft"`
}

// Detail returns the detail projection for one event. viewerID may be empty
// for anonymous callers; IsRegistered is then always false.
func (s *Service) Detail(ctx context.Context, eventID, viewerID string) (*Detail, error) {
	ev, _, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Event:        *ev,
		Organizer:    s.resolveUser(ctx, ev.OrganizerID),
		Attendees:    s.resolveAttendees(ctx, ev.Attendees),
		SpotsLeft:    ev.SpotsLeft(),
		IsRegistered: viewerID != "" && ev.IsRegistered(viewerID),
	}, nil
}

func (s *Service) resolveAttendees(ctx context.Context, attendees []domain.Attendee) []RosterEntry {
	entries := make([]RosterEntry, 0, len(attendees))
	for _, a := range attendees {
		entries = append(entries, RosterEntry{
			User:         s.resolveUser(ctx, a.UserID),
			RegisteredAt: a.RegisteredAt.Format(timeFormat),
		})
	}
	return entries
}

// Roster returns the resolved attendee list for admins.
func (s *Service) Roster(ctx context.Context, eventID string) (*Roster, error) {
	ev, _, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &Roster{
		EventTitle:         ev.Title,
		Capacity:           ev.Capacity,
		TotalRegistrations: len(ev.Attendees),
		Attendees:          s.resolveAttendees(ctx, ev.Attendees),
	}, nil
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// UserEvents returns every event the user is registered for, past and
// future alike, sorted by event date ascending. An event that vanished
// between the membership read and the event read is skipped rather than
// failing the whole view.
func (s *Service) UserEvents(ctx context.Context, userID string) ([]UserEvent, error) {
	regs, err := s.store.ListRegistrations(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]UserEvent, 0, len(regs))
	for _, reg := range regs {
		ev, _, err := s.store.GetEvent(ctx, reg.EventID)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		out = append(out, UserEvent{
			Event:     *ev,
			Organizer: s.resolveUser(ctx, ev.OrganizerID),
			SpotsLeft: ev.SpotsLeft(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// resolveUser turns a user reference into display fields. A missing account
// record degrades to the bare ID instead of failing the read.
func (s *Service) resolveUser(ctx context.Context, id string) domain.UserRef {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return domain.UserRef{ID: id}
	}
	return domain.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
