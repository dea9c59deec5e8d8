package domain

import (
	"encoding/json"
	"time"
)

// Activity type discriminators stored in the activities table.
const (
	ActivityTypeAward      = "xp_award"
	ActivityTypeAdjustment = "xp_adjustment"
)

// Activity is an immutable, append-only audit entry for an XP-affecting
// event. Rows are created once by the award/adjustment workflows and never
// updated or deleted; their timestamps double as the raw input to streak
// computation.
type Activity struct {
	ID        string
	TenantID  string
	UserID    string
	Type      string
	XP        int
	Reason    string
	Metadata  json.RawMessage
	CreatedAt time.Time
}
