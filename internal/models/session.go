package models

import "time"

// Session groups the ordered message history of one conversation.
// Sessions are created lazily on the first chat turn and never mutated.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
