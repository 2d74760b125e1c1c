package domain

import (
	"strings"
	"time"
)

// Categories lists the fixed set of event categories.
var Categories = []string{
	"Technology",
	"Business",
	"Music",
	"Art",
	"Sports",
	"Food",
	"Health",
	"Education",
	"Networking",
	"Other",
}

// DefaultImageURL is used when an event is created without an image.
const DefaultImageURL = "https://images.unsplash.com/photo-1540575467063-178a50c2df87?w=800"

// ValidCategory reports whether c is one of the fixed category values.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Attendee is a registered user reference stored on an event.
type Attendee struct {
	UserID       string    `json:"userId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event is the authoritative event record, attendee list included.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	Time        string     `json:"time"`
	Location    string     `json:"location"`
	Category    string     `json:"category"`
	Image       string     `json:"image"`
	Capacity    int        `json:"capacity"`
	Price       float64    `json:"price"`
	OrganizerID string     `json:"organizer"`
	Attendees   []Attendee `json:"attendees"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// SpotsLeft returns the remaining capacity. Never negative while the
// capacity invariant holds.
func (e *Event) SpotsLeft() int {
	return e.Capacity - len(e.Attendees)
}

// IsRegistered reports whether userID appears in the attendee list.
func (e *Event) IsRegistered(userID string) bool {
	return e.AttendeeIndex(userID) >= 0
}

// AttendeeIndex returns the position of userID in the attendee list, -1 if absent.
func (e *Event) AttendeeIndex(userID string) int {
	for i := range e.Attendees {
		if e.Attendees[i].UserID == userID {
			return i
		}
	}
	return -1
}

// EventInput carries the fields accepted when creating an event.
type EventInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Location    string  `json:"location"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Capacity    int     `json:"capacity"`
	Price       float64 `json:"price"`
}

// EventPatch carries partial updates; nil fields are left unchanged.
type EventPatch struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Date        *string  `json:"date"`
	Time        *string  `json:"time"`
	Location    *string  `json:"location"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
	Capacity    *int     `json:"capacity"`
	Price       *float64 `json:"price"`
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// ParseDate accepts the date formats clients send.
func ParseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var d time.Time
		d, err = time.Parse(layout, s)
		if err == nil {
			return d, nil
		}
	}
	return time.Time{}, err
}

// Validate checks required fields in declaration order and reports the
// first violation.
func (in *EventInput) Validate() (Event, *ValidationError) {
	if strings.TrimSpace(in.Title) == "" {
		return Event{}, &ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return Event{}, &ValidationError{Field: "description", Reason: "is required"}
	}
	if strings.TrimSpace(in.Date) == "" {
		return Event{}, &ValidationError{Field: "date", Reason: "is required"}
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return Event{}, &ValidationError{Field: "date", Reason: "is not a valid date"}
	}
	if strings.TrimSpace(in.Time) == "" {
		return Event{}, &ValidationError{Field: "time", Reason: "is required"}
	}
	if strings.TrimSpace(in.Location) == "" {
		return Event{}, &ValidationError{Field: "location", Reason: "is required"}
	}
	if !ValidCategory(in.Category) {
		return Event{}, &ValidationError{Field: "category", Reason: "must be one of the known categories"}
	}
	if in.Capacity < 1 {
		return Event{}, &ValidationError{Field: "capacity", Reason: "must be at least 1"}
	}
	if in.Price < 0 {
		return Event{}, &ValidationError{Field: "price", Reason: "cannot be negative"}
	}
	image := in.Image
	if strings.TrimSpace(image) == "" {
		image = DefaultImageURL
	}
	return Event{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Date:        date,
		Time:        strings.TrimSpace(in.Time),
		Location:    strings.TrimSpace(in.Location),
		Category:    in.Category,
		Image:       image,
		Capacity:    in.Capacity,
		Price:       in.Price,
	}, nil
}

// Apply merges the patch into ev, re-validating every changed field. The
// attendee count acts as a floor for capacity so the capacity invariant
// survives admin edits.
func (p *EventPatch) Apply(ev *Event) *ValidationError {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return &ValidationError{Field: "title", Reason: "is required"}
		}
		ev.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return &ValidationError{Field: "description", Reason: "is required"}
		}
		ev.Description = *p.Description
	}
	if p.Date != nil {
		date, err := ParseDate(*p.Date)
		if err != nil {
			return &ValidationError{Field: "date", Reason: "is not a valid date"}
		}
		ev.Date = date
	}
	if p.Time != nil {
		if strings.TrimSpace(*p.Time) == "" {
			return &ValidationError{Field: "time", Reason: "is required"}
		}
		ev.Time = strings.TrimSpace(*p.Time)
	}
	if p.Location != nil {
		if strings.TrimSpace(*p.Location) == "" {
			return &ValidationError{Field: "location", Reason: "is required"}
		}
		ev.Location = strings.TrimSpace(*p.Location)
	}
	if p.Category != nil {
		if !ValidCategory(*p.Category) {
			return &ValidationError{Field: "category", Reason: "must be one of the known categories"}
		}
		ev.Category = *p.Category
	}
	if p.Image != nil {
		ev.Image = *p.Image
	}
	if p.Capacity != nil {
		if *p.Capacity < 1 {
			return &ValidationError{Field: "capacity", Reason: "must be at least 1"}
		}
		if *p.Capacity < len(ev.Attendees) {
			return &ValidationError{Field: "capacity", Reason: "cannot be lower than the current attendee count"}
		}
		ev.Capacity = *p.Capacity
	}
	if p.Price != nil {
		if *p.Price < 0 {
			return &ValidationError{Field: "price", Reason: "cannot be negative"}
		}
		ev.Price = *p.Price
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p *EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil && p.Time == nil &&
		p.Location == nil && p.Category == nil && p.Image == nil && p.Capacity == nil && p.Price == nil
}
