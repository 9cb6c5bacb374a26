package models

import (
	"time"
)

// Content is an artifact catalog entry produced by a completed job. Rows are
// immutable once inserted.
type Content struct {
	ID        uint64                 `json:"id" badgerhold:"key"`
	UserID    string                 `json:"user_id" badgerholdIndex:"UserID"`
	Title     string                 `json:"title"`
	Type      string                 `json:"content_type"`
	Data      string                 `json:"content_data"` // primary artifact path
	Prompt    string                 `json:"prompt,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// User is an opaque identity bearer. Users are created by external flows;
// the core only reads them.
type User struct {
	ID          string                 `json:"id" badgerhold:"key"`
	Username    string                 `json:"username"`
	Email       string                 `json:"email"`
	Active      bool                   `json:"is_active"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Notification is a best-effort per-user message about a finished job.
type Notification struct {
	ID        uint64    `json:"id" badgerhold:"key"`
	UserID    string    `json:"user_id" badgerholdIndex:"UserID"`
	JobID     uint64    `json:"job_id"`
	Kind      string    `json:"kind"` // generation_completed | generation_failed
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
