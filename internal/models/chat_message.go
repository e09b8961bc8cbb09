package models

import (
	"time"
)

// ChatMessage is a message posted to an event's chat. Messages are never edited or deleted.
type ChatMessage struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessageCreate is the body for POST /api/events/:id/chat.
type ChatMessageCreate struct {
	Message string `json:"message" binding:"required,max=1000"`
}

// Validate checks the message is 1 to 1000 characters.
func (in *ChatMessageCreate) Validate() error {
	return validateStruct(in)
}
