package api

import (
	"context"

	"eventify-api/domain"
	"eventify-api/events"
	"eventify-api/registration"
)

// Events abstracts event CRUD for handlers.
type Events interface {
	List(ctx context.Context, f events.Filter) (events.ListResult, error)
	Create(ctx context.Context, in domain.EventInput, organizerID string) (*events.View, error)
	Update(ctx context.Context, id string, patch domain.EventPatch) (*events.View, error)
	Delete(ctx context.Context, id string) error
}

// Registrations abstracts the registration state machine and its read
// projections for handlers.
type Registrations interface {
	Register(ctx context.Context, userID, eventID string) error
	Unregister(ctx context.Context, userID, eventID string) error
	Detail(ctx context.Context, eventID, viewerID string) (*registration.Detail, error)
	Roster(ctx context.Context, eventID string) (*registration.Roster, error)
	UserEvents(ctx context.Context, userID string) ([]registration.UserEvent, error)
}

// Authenticator is implemented by types able to extract verified identities
// from Authorization headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Identity, error)
}
