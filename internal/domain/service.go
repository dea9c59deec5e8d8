// Package domain implements the XP award and adjustment workflows plus the
// read side consumed by profile and report views.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Migueldasensi/migenius-95524223/internal/auth"
	"github.com/Migueldasensi/migenius-95524223/internal/observability"
	"github.com/Migueldasensi/migenius-95524223/internal/rank"
)

var (
	// ErrInvalidArgument indicates a missing or malformed request field.
	ErrInvalidArgument = errors.New("invalid parameters")
	// ErrTenantNotFound indicates the caller's tenant could not be resolved.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrPermissionDenied indicates the caller lacks the required role.
	ErrPermissionDenied = errors.New("forbidden")
	// ErrUserNotFound is returned by read-side lookups for unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// ActivityStore captures persistence operations over the append-only
// activity log.
type ActivityStore interface {
	Insert(ctx context.Context, activity Activity) error
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ListSince(ctx context.Context, tenantID, userID string, since time.Time) ([]Activity, error)
	TimestampsByUser(ctx context.Context, tenantID, userID string) ([]time.Time, error)
}

// UserStore exposes the per-user XP balance and tenant membership.
type UserStore interface {
	TenantFor(ctx context.Context, userID string) (string, error)
	// XP returns the user's balance, treating a NULL column as 0. found
	// reports whether the user row exists at all.
	XP(ctx context.Context, tenantID, userID string) (xp int, found bool, err error)
	SetXP(ctx context.Context, tenantID, userID string, xp int) error
}

// RoleStore answers tenant-scoped role membership questions.
type RoleStore interface {
	HasRole(ctx context.Context, userID string, role auth.Role, tenantID string) (bool, error)
	RolesFor(ctx context.Context, userID, tenantID string) ([]auth.Role, error)
}

// Cursor models the keyset pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Service orchestrates the gamification workflows.
type Service struct {
	users      UserStore
	activities ActivityStore
	roles      RoleStore
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(users UserStore, activities ActivityStore, roles RoleStore) *Service {
	return &Service{users: users, activities: activities, roles: roles, now: time.Now}
}

// AwardInput captures a staff XP grant from the API layer.
type AwardInput struct {
	CallerID string
	UserID   string
	XP       int
	Reason   string
	Metadata json.RawMessage
}

// AwardResult is returned on a successful grant or adjustment.
type AwardResult struct {
	ActivityID string
	NewXP      int
}

// AwardXP applies a positive XP delta to the target user on behalf of a
// teacher or admin, logging an immutable activity record first.
//
// The two writes are intentionally not atomic: the activity insert (with its
// outbox rows) commits on its own, and the balance read-modify-write runs
// afterwards. A storage failure between the two leaves a logged award whose
// balance was never applied, and two concurrent awards to the same user can
// lose an increment. Both behaviors match the system this replaces and are
// surfaced to the caller rather than retried.
func (s *Service) AwardXP(ctx context.Context, in AwardInput) (*AwardResult, error) {
	if in.UserID == "" || in.XP <= 0 {
		return nil, ErrInvalidArgument
	}

	tenantID, err := s.users.TenantFor(ctx, in.CallerID)
	if err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, ErrTenantNotFound
	}

	isTeacher, err := s.roles.HasRole(ctx, in.CallerID, auth.RoleTeacher, tenantID)
	if err != nil {
		return nil, err
	}
	isAdmin, err := s.roles.HasRole(ctx, in.CallerID, auth.RoleAdmin, tenantID)
	if err != nil {
		return nil, err
	}
	if !isTeacher && !isAdmin {
		return nil, ErrPermissionDenied
	}

	result, err := s.apply(ctx, tenantID, in, ActivityTypeAward, false)
	if err != nil {
		return nil, err
	}
	observability.RecordAward(in.XP)
	return result, nil
}

// AdjustXP applies an administrative correction, whose delta may be
// negative. Admin-only; the resulting balance is clamped at zero.
func (s *Service) AdjustXP(ctx context.Context, in AwardInput) (*AwardResult, error) {
	if in.UserID == "" || in.XP == 0 {
		return nil, ErrInvalidArgument
	}

	tenantID, err := s.users.TenantFor(ctx, in.CallerID)
	if err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, ErrTenantNotFound
	}

	isAdmin, err := s.roles.HasRole(ctx, in.CallerID, auth.RoleAdmin, tenantID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, ErrPermissionDenied
	}

	result, err := s.apply(ctx, tenantID, in, ActivityTypeAdjustment, true)
	if err != nil {
		return nil, err
	}
	observability.RecordAdjustment(in.XP)
	return result, nil
}

func (s *Service) apply(ctx context.Context, tenantID string, in AwardInput, activityType string, clampAtZero bool) (*AwardResult, error) {
	activity := Activity{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    in.UserID,
		Type:      activityType,
		XP:        in.XP,
		Reason:    in.Reason,
		Metadata:  in.Metadata,
		CreatedAt: s.now().UTC(),
	}

	if err := s.activities.Insert(ctx, activity); err != nil {
		return nil, err
	}

	current, _, err := s.users.XP(ctx, tenantID, in.UserID)
	if err != nil {
		return nil, err
	}
	newXP := current + in.XP
	if clampAtZero && newXP < 0 {
		newXP = 0
	}
	if err := s.users.SetXP(ctx, tenantID, in.UserID, newXP); err != nil {
		return nil, err
	}

	return &AwardResult{ActivityID: activity.ID, NewXP: newXP}, nil
}

// ProgressView is the rank/streak snapshot served to profile views.
type ProgressView struct {
	UserID        string
	XP            int
	Tier          rank.Tier
	Progress      rank.Progress
	Streak        int
	LongestStreak int
}

// UserProgress resolves the target's XP balance through the rank engine.
// Students may read their own progress; teachers and admins may read anyone
// in their tenant.
func (s *Service) UserProgress(ctx context.Context, callerID, userID string) (*ProgressView, error) {
	tenantID, err := s.authorizeRead(ctx, callerID, userID)
	if err != nil {
		return nil, err
	}

	xp, found, err := s.users.XP(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUserNotFound
	}

	timestamps, err := s.activities.TimestampsByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	return &ProgressView{
		UserID:        userID,
		XP:            xp,
		Tier:          rank.TierForXP(xp),
		Progress:      rank.ProgressToNext(xp),
		Streak:        rank.StreakOn(now, timestamps),
		LongestStreak: rank.LongestStreakIn(now.Location(), timestamps),
	}, nil
}

// DayTotal is one day's XP sum inside a weekly report.
type DayTotal struct {
	Date time.Time
	XP   int
}

// WeeklyReport aggregates the trailing seven days of activity.
type WeeklyReport struct {
	UserID        string
	WeekXP        int
	Days          []DayTotal
	Streak        int
	LongestStreak int
}

// UserWeeklyReport sums awarded XP per calendar day over the trailing seven
// days (oldest first) alongside the live and all-time streaks.
func (s *Service) UserWeeklyReport(ctx context.Context, callerID, userID string) (*WeeklyReport, error) {
	tenantID, err := s.authorizeRead(ctx, callerID, userID)
	if err != nil {
		return nil, err
	}

	if _, found, err := s.users.XP(ctx, tenantID, userID); err != nil {
		return nil, err
	} else if !found {
		return nil, ErrUserNotFound
	}

	now := s.now()
	loc := now.Location()
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -6)

	recent, err := s.activities.ListSince(ctx, tenantID, userID, weekStart.UTC())
	if err != nil {
		return nil, err
	}

	// Bucket by calendar date rather than elapsed hours so DST transitions
	// (23 and 25 hour local days) cannot shift an activity into the wrong day.
	report := &WeeklyReport{UserID: userID, Days: make([]DayTotal, 7)}
	buckets := make(map[string]int, 7)
	for i := range report.Days {
		date := weekStart.AddDate(0, 0, i)
		report.Days[i].Date = date
		buckets[date.Format(time.DateOnly)] = i
	}
	for _, act := range recent {
		idx, ok := buckets[act.CreatedAt.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		report.Days[idx].XP += act.XP
		report.WeekXP += act.XP
	}

	timestamps, err := s.activities.TimestampsByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	report.Streak = rank.StreakOn(now, timestamps)
	report.LongestStreak = rank.LongestStreakIn(loc, timestamps)
	return report, nil
}

// ListActivities pages through the target's activity feed, newest first.
func (s *Service) ListActivities(ctx context.Context, callerID, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	tenantID, err := s.authorizeRead(ctx, callerID, userID)
	if err != nil {
		return nil, nil, err
	}
	return s.activities.ListByUser(ctx, tenantID, userID, cursor, limit)
}

// authorizeRead resolves the caller's tenant and checks read access to the
// target: self-reads are always allowed, otherwise the caller's highest role
// in the tenant must be teacher or above.
func (s *Service) authorizeRead(ctx context.Context, callerID, userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidArgument
	}

	tenantID, err := s.users.TenantFor(ctx, callerID)
	if err != nil {
		return "", err
	}
	if tenantID == "" {
		return "", ErrTenantNotFound
	}

	if callerID == userID {
		return tenantID, nil
	}

	roles, err := s.roles.RolesFor(ctx, callerID, tenantID)
	if err != nil {
		return "", err
	}
	if !auth.HighestRole(roles).AtLeast(auth.RoleTeacher) {
		return "", ErrPermissionDenied
	}
	return tenantID, nil
}
