// Package streams moves shield events and user activity over Redis Streams.
package streams

import "time"

// Stream name constants
const (
	StreamShieldEvents = "shield:events"
	StreamUserActivity = "user:activity"
)

// Consumer group constants
const (
	GroupActivityWorkers = "shield-activity-workers"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// ShieldEvent is an audit or lifecycle event published for monitoring.
type ShieldEvent struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"` // access type or activation type
	UserID     string    `json:"user_id,omitempty"`
	GuardianID string    `json:"guardian_id,omitempty"`
	TokenID    string    `json:"token_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActivityEvent reports that a user was active somewhere in the product
// (web sign-in, mobile app open). Producers identify the user by ID or email.
type ActivityEvent struct {
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}
