// Package events defines the payloads published for XP-affecting actions.
// Downstream consumers (dashboards, realtime fan-out) decode these as plain
// JSON.
package events

import (
	"encoding/json"
	"time"
)

// XPAwarded is emitted when a staff member grants XP to a student.
type XPAwarded struct {
	ActivityID string          `json:"activity_id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	XP         int             `json:"xp"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// XPAdjusted is emitted for administrative corrections, whose delta may be
// negative.
type XPAdjusted struct {
	ActivityID string          `json:"activity_id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	XP         int             `json:"xp"`
	Reason     string          `json:"reason,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
