package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/trailmeet/backend/internal/models"
)

// Timestamp is a UTC instant stored as a BSON datetime. It also decodes ISO-8601 strings, which is
// how documents written by the previous backend hold their dates.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, truncated to the millisecond precision BSON datetimes carry.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// MarshalBSONValue writes a BSON datetime.
func (t Timestamp) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(t.Time.UTC())
}

// UnmarshalBSONValue reads a BSON datetime, an ISO-8601 string, or null.
func (t *Timestamp) UnmarshalBSONValue(typ bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: typ, Value: data}
	switch typ {
	case bsontype.DateTime:
		ms, ok := raw.DateTimeOK()
		if !ok {
			return fmt.Errorf("malformed datetime")
		}
		t.Time = time.UnixMilli(ms).UTC()
	case bsontype.String:
		s, ok := raw.StringValueOK()
		if !ok {
			return fmt.Errorf("malformed string")
		}
		parsed, err := models.ParseISOTime(s)
		if err != nil {
			return err
		}
		t.Time = parsed
	case bsontype.Null, bsontype.Undefined:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("cannot decode %s into a timestamp", typ)
	}
	return nil
}

func timestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := NewTimestamp(*t)
	return &ts
}

func timePtr(t *Timestamp) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type userDoc struct {
	ID             string     `bson:"id"`
	Email          string     `bson:"email"`
	Name           string     `bson:"name"`
	Picture        string     `bson:"picture"`
	CreatedAt      Timestamp  `bson:"created_at"`
	SessionToken   *string    `bson:"session_token,omitempty"`
	SessionExpires *Timestamp `bson:"session_expires,omitempty"`
}

func toUserDoc(u *models.User) userDoc {
	return userDoc{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Picture:        u.Picture,
		CreatedAt:      NewTimestamp(u.CreatedAt),
		SessionToken:   u.SessionToken,
		SessionExpires: timestampPtr(u.SessionExpires),
	}
}

func (d *userDoc) model() *models.User {
	return &models.User{
		ID:             d.ID,
		Email:          d.Email,
		Name:           d.Name,
		Picture:        d.Picture,
		CreatedAt:      d.CreatedAt.Time,
		SessionToken:   d.SessionToken,
		SessionExpires: timePtr(d.SessionExpires),
	}
}

type locationDoc struct {
	Lat     float64 `bson:"lat"`
	Lng     float64 `bson:"lng"`
	Address string  `bson:"address"`
}

type eventDoc struct {
	ID           string      `bson:"id"`
	Title        string      `bson:"title"`
	Description  string      `bson:"description"`
	Location     locationDoc `bson:"location"`
	EventDate    Timestamp   `bson:"event_date"`
	EventType    string      `bson:"event_type"`
	Capacity     *int        `bson:"capacity"`
	CreatedBy    string      `bson:"created_by"`
	CreatedAt    Timestamp   `bson:"created_at"`
	Participants []string    `bson:"participants"`
	Status       string      `bson:"status"`
}

func toEventDoc(e *models.Event) eventDoc {
	participants := e.Participants
	if participants == nil {
		participants = []string{}
	}
	return eventDoc{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Location:     locationDoc(e.Location),
		EventDate:    NewTimestamp(e.EventDate),
		EventType:    string(e.EventType),
		Capacity:     e.Capacity,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    NewTimestamp(e.CreatedAt),
		Participants: participants,
		Status:       string(e.Status),
	}
}

// model converts the document, rejecting enum values the API does not know.
func (d *eventDoc) model() (*models.Event, error) {
	eventType := models.EventType(d.EventType)
	if !eventType.Valid() {
		return nil, fmt.Errorf("event %s: invalid event_type %q", d.ID, d.EventType)
	}
	status := models.EventStatus(d.Status)
	if d.Status == "" {
		status = models.EventStatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("event %s: invalid status %q", d.ID, d.Status)
	}
	participants := d.Participants
	if participants == nil {
		participants = []string{}
	}
	return &models.Event{
		ID:           d.ID,
		Title:        d.Title,
		Description:  d.Description,
		Location:     models.EventLocation(d.Location),
		EventDate:    d.EventDate.Time,
		EventType:    eventType,
		Capacity:     d.Capacity,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt.Time,
		Participants: participants,
		Status:       status,
	}, nil
}

type messageDoc struct {
	ID        string    `bson:"id"`
	EventID   string    `bson:"event_id"`
	UserID    string    `bson:"user_id"`
	UserName  string    `bson:"user_name"`
	Message   string    `bson:"message"`
	Timestamp Timestamp `bson:"timestamp"`
}

func toMessageDoc(m *models.ChatMessage) messageDoc {
	return messageDoc{
		ID:        m.ID,
		EventID:   m.EventID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Message:   m.Message,
		Timestamp: NewTimestamp(m.Timestamp),
	}
}

func (d *messageDoc) model() models.ChatMessage {
	return models.ChatMessage{
		ID:        d.ID,
		EventID:   d.EventID,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Message:   d.Message,
		Timestamp: d.Timestamp.Time,
	}
}
