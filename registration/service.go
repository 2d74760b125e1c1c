package registration

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"eventify-api/domain"
)

// Store defines the persistence methods the registration service needs.
// UpdateEvent must be conditional on etag and return
// domain.ErrConcurrencyConflict when the event changed underneath; that
// conflict signal is what makes the capacity check-then-append atomic.
type Store interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, string, error)
	UpdateEvent(ctx context.Context, ev domain.Event, etag string) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	AddRegistration(ctx context.Context, userID, eventID string, at time.Time) error
	RemoveRegistration(ctx context.Context, userID, eventID string) error
	ListRegistrations(ctx context.Context, userID string) ([]domain.Registration, error)
	EnqueueRepair(ctx context.Context, r domain.Repair) error
}

// userSideAttempts bounds inline retries of the user-side write before the
// repair queue takes over.
const userSideAttempts = 3

// Service enforces the capacity and duplicate-registration invariants for
// the (user, event) membership state machine.
type Service struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

// NewService creates a registration Service.
func NewService(store Store, logger *log.Logger) *Service {
	if store == nil {
		panic("registration.NewService: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Register moves the (user, event) pair to the Registered state.
//
// The event-side append is guarded by the event's ETag: when a concurrent
// registration lands first the conditional write fails, the event is
// re-fetched and every guard re-runs against the fresh attendee list.
// Capacity is therefore a hard ceiling; the list never exceeds it even
// transiently. Returns NotFound, AlreadyRegistered, EventFull or a
// PartialRegistrationError when the user-side write could not be completed.
func (s *Service) Register(ctx context.Context, userID, eventID string) error {
	for {
		ev, etag, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.IsRegistered(userID) {
			return domain.ErrAlreadyRegistered
		}
		if len(ev.Attendees) >= ev.Capacity {
			return domain.ErrEventFull
		}
		at := s.now().UTC()
		ev.Attendees = append(ev.Attendees, domain.Attendee{UserID: userID, RegisteredAt: at})
		if err := s.store.UpdateEvent(ctx, *ev, etag); err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				continue
			}
			return err
		}
		return s.completeUserSide(ctx, domain.Repair{
			Op:           domain.RepairAdd,
			UserID:       userID,
			EventID:      eventID,
			RegisteredAt: at,
		})
	}
}

// Unregister moves the (user, event) pair back to the Unregistered state.
func (s *Service) Unregister(ctx context.Context, userID, eventID string) error {
	for {
		ev, etag, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		idx := ev.AttendeeIndex(userID)
		if idx < 0 {
			return domain.ErrNotRegistered
		}
		ev.Attendees = append(ev.Attendees[:idx], ev.Attendees[idx+1:]...)
		if err := s.store.UpdateEvent(ctx, *ev, etag); err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				continue
			}
			return err
		}
		return s.completeUserSide(ctx, domain.Repair{
			Op:      domain.RepairRemove,
			UserID:  userID,
			EventID: eventID,
		})
	}
}

// completeUserSide applies the user-side half of a registration write. The
// event side has already committed, so a failure here must never be dropped:
// after inline retries the repair is queued and the caller gets a
// PartialRegistrationError.
func (s *Service) completeUserSide(ctx context.Context, r domain.Repair) error {
	var err error
	for attempt := 0; attempt < userSideAttempts; attempt++ {
		err = applyRepair(ctx, s.store, r)
		if err == nil {
			return nil
		}
	}

	fields := log.Fields{
		"user":    r.UserID,
		"event":   r.EventID,
		"op":      string(r.Op),
		"partial": true,
	}
	if qErr := s.store.EnqueueRepair(ctx, r); qErr != nil {
		s.logger.WithFields(fields).WithError(qErr).Error("user-side registration write failed and repair enqueue failed")
	} else {
		s.logger.WithFields(fields).WithError(err).Error("user-side registration write failed, repair queued")
	}
	return &domain.PartialRegistrationError{UserID: r.UserID, EventID: r.EventID, Op: r.Op, Err: err}
}

func applyRepair(ctx context.Context, store Store, r domain.Repair) error {
	switch r.Op {
	case domain.RepairAdd:
		return store.AddRegistration(ctx, r.UserID, r.EventID, r.RegisteredAt)
	case domain.RepairRemove:
		return store.RemoveRegistration(ctx, r.UserID, r.EventID)
	default:
		return errors.New("unknown repair op " + string(r.Op))
	}
}
