package models

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of outdoor activity.
type EventType string

const (
	EventTypeHiking   EventType = "hiking"
	EventTypeCamping  EventType = "camping"
	EventTypeCycling  EventType = "cycling"
	EventTypeSports   EventType = "sports"
	EventTypeWorkshop EventType = "workshop"
	EventTypeFestival EventType = "festival"
	EventTypeClimbing EventType = "climbing"
	EventTypeKayaking EventType = "kayaking"
	EventTypeRunning  EventType = "running"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeHiking, EventTypeCamping, EventTypeCycling, EventTypeSports, EventTypeWorkshop,
		EventTypeFestival, EventTypeClimbing, EventTypeKayaking, EventTypeRunning:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of an event. Only active is ever assigned by the API.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusActive, EventStatusCancelled, EventStatusCompleted:
		return true
	}
	return false
}

// EventLocation is where an event takes place.
type EventLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Event is an outdoor event users can join.
type Event struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Location     EventLocation `json:"location"`
	EventDate    time.Time     `json:"event_date"`
	EventType    EventType     `json:"event_type"`
	Capacity     *int          `json:"capacity"`
	CreatedBy    string        `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	Participants []string      `json:"participants"`
	Status       EventStatus   `json:"status"`
}

// HasParticipant reports whether userID already joined.
func (e *Event) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsFull reports whether the event has a capacity and it is reached.
func (e *Event) IsFull() bool {
	return e.Capacity != nil && len(e.Participants) >= *e.Capacity
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	c := *e
	if e.Capacity != nil {
		n := *e.Capacity
		c.Capacity = &n
	}
	c.Participants = append([]string{}, e.Participants...)
	return &c
}

// LocationInput is the location part of EventCreate. Coordinates are pointers so that 0 is a valid value.
type LocationInput struct {
	Lat     *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	Address string   `json:"address" binding:"required"`
}

// EventCreate is the body for POST /api/events.
type EventCreate struct {
	Title       string        `json:"title" binding:"required,max=200"`
	Description string        `json:"description" binding:"required,max=2000"`
	Location    LocationInput `json:"location"`
	EventDate   string        `json:"event_date" binding:"required"`
	EventType   EventType     `json:"event_type" binding:"required,oneof=hiking camping cycling sports workshop festival climbing kayaking running"`
	Capacity    *int          `json:"capacity" binding:"omitempty,gt=0,lte=1000"`
}

// Validate checks field constraints and that event_date parses.
func (in *EventCreate) Validate() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if _, err := ParseISOTime(in.EventDate); err != nil {
		return &ValidationError{Field: "event_date", Reason: err.Error()}
	}
	return nil
}

// EventLocation returns the validated location. Call after Validate.
func (in *EventCreate) EventLocation() EventLocation {
	loc := EventLocation{Address: in.Location.Address}
	if in.Location.Lat != nil {
		loc.Lat = *in.Location.Lat
	}
	if in.Location.Lng != nil {
		loc.Lng = *in.Location.Lng
	}
	return loc
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseISOTime accepts RFC 3339 and the common ISO-8601 variants browsers and scripts send.
// Values without a zone are taken as UTC.
func ParseISOTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use RFC 3339 or YYYY-MM-DD", s)
}
