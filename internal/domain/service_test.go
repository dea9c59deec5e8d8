package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Migueldasensi/migenius-95524223/internal/auth"
)

type mockUsers struct {
	tenants map[string]string
	xp      map[string]int
	exists  map[string]bool
	xpErr   error
	setErr  error
	set     map[string]int
}

func (m *mockUsers) TenantFor(ctx context.Context, userID string) (string, error) {
	return m.tenants[userID], nil
}

func (m *mockUsers) XP(ctx context.Context, tenantID, userID string) (int, bool, error) {
	if m.xpErr != nil {
		return 0, false, m.xpErr
	}
	if !m.exists[userID] {
		return 0, false, nil
	}
	return m.xp[userID], true, nil
}

func (m *mockUsers) SetXP(ctx context.Context, tenantID, userID string, xp int) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.set == nil {
		m.set = make(map[string]int)
	}
	m.set[userID] = xp
	return nil
}

type mockActivities struct {
	inserted  []Activity
	insertErr error
	history   []Activity
}

func (m *mockActivities) Insert(ctx context.Context, activity Activity) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, activity)
	return nil
}

func (m *mockActivities) ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return m.history, nil, nil
}

func (m *mockActivities) ListSince(ctx context.Context, tenantID, userID string, since time.Time) ([]Activity, error) {
	out := make([]Activity, 0, len(m.history))
	for _, act := range m.history {
		if !act.CreatedAt.Before(since) {
			out = append(out, act)
		}
	}
	return out, nil
}

func (m *mockActivities) TimestampsByUser(ctx context.Context, tenantID, userID string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(m.history))
	for _, act := range m.history {
		out = append(out, act.CreatedAt)
	}
	return out, nil
}

type mockRoles struct {
	roles map[string][]auth.Role
}

func (m *mockRoles) HasRole(ctx context.Context, userID string, role auth.Role, tenantID string) (bool, error) {
	for _, r := range m.roles[userID] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoles) RolesFor(ctx context.Context, userID, tenantID string) ([]auth.Role, error) {
	return m.roles[userID], nil
}

func newTestService(users *mockUsers, acts *mockActivities, roles *mockRoles) *Service {
	svc := NewService(users, acts, roles)
	svc.now = func() time.Time {
		return time.Date(2025, time.March, 15, 18, 0, 0, 0, time.UTC)
	}
	return svc
}

func staffFixture() (*mockUsers, *mockActivities, *mockRoles) {
	users := &mockUsers{
		tenants: map[string]string{"prof-1": "tenant-1", "admin-1": "tenant-1", "aluno-1": "tenant-1"},
		xp:      map[string]int{"aluno-1": 100},
		exists:  map[string]bool{"aluno-1": true},
	}
	roles := &mockRoles{roles: map[string][]auth.Role{
		"prof-1":  {auth.RoleTeacher},
		"admin-1": {auth.RoleAdmin, auth.RoleStudent},
		"aluno-1": {auth.RoleStudent},
	}}
	return users, &mockActivities{}, roles
}

func TestAwardXP_HappyPath(t *testing.T) {
	users, acts, roles := staffFixture()
	svc := newTestService(users, acts, roles)

	res, err := svc.AwardXP(context.Background(), AwardInput{
		CallerID: "prof-1", UserID: "aluno-1", XP: 50, Reason: "redação nota 10",
	})
	if err != nil {
		t.Fatalf("AwardXP returned error: %v", err)
	}
	if res.NewXP != 150 {
		t.Errorf("new xp = %d, want 150", res.NewXP)
	}
	if got := users.set["aluno-1"]; got != 150 {
		t.Errorf("persisted xp = %d, want 150", got)
	}
	if len(acts.inserted) != 1 {
		t.Fatalf("inserted %d activities, want 1", len(acts.inserted))
	}
	act := acts.inserted[0]
	if act.Type != ActivityTypeAward || act.XP != 50 || act.UserID != "aluno-1" || act.TenantID != "tenant-1" {
		t.Errorf("unexpected activity record: %+v", act)
	}
	if act.ID == "" || act.ID != res.ActivityID {
		t.Errorf("activity id %q does not match result %q", act.ID, res.ActivityID)
	}
	if act.CreatedAt.IsZero() {
		t.Error("activity missing created_at")
	}
}

func TestAwardXP_AdminAllowed(t *testing.T) {
	users, acts, roles := staffFixture()
	svc := newTestService(users, acts, roles)

	if _, err := svc.AwardXP(context.Background(), AwardInput{CallerID: "admin-1", UserID: "aluno-1", XP: 10}); err != nil {
		t.Fatalf("admin award rejected: %v", err)
	}
}

func TestAwardXP_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		in      AwardInput
		wantErr error
	}{
		{"zero xp", AwardInput{CallerID: "prof-1", UserID: "aluno-1", XP: 0}, ErrInvalidArgument},
		{"negative xp", AwardInput{CallerID: "prof-1", UserID: "aluno-1", XP: -10}, ErrInvalidArgument},
		{"missing target", AwardInput{CallerID: "prof-1", XP: 10}, ErrInvalidArgument},
		{"student caller", AwardInput{CallerID: "aluno-1", UserID: "aluno-1", XP: 10}, ErrPermissionDenied},
		{"unknown caller has no tenant", AwardInput{CallerID: "ghost", UserID: "aluno-1", XP: 10}, ErrTenantNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users, acts, roles := staffFixture()
			svc := newTestService(users, acts, roles)
			if _, err := svc.AwardXP(context.Background(), tc.in); !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			if len(acts.inserted) != 0 {
				t.Errorf("rejected award still inserted %d activities", len(acts.inserted))
			}
		})
	}
}

func TestAwardXP_MissingBalanceTreatedAsZero(t *testing.T) {
	users, acts, roles := staffFixture()
	users.exists["novato"] = false
	users.tenants["novato"] = "tenant-1"
	svc := newTestService(users, acts, roles)

	res, err := svc.AwardXP(context.Background(), AwardInput{CallerID: "prof-1", UserID: "novato", XP: 25})
	if err != nil {
		t.Fatalf("AwardXP returned error: %v", err)
	}
	if res.NewXP != 25 {
		t.Errorf("new xp = %d, want 25", res.NewXP)
	}
}

// The activity insert commits before the balance write; a failure on the
// second step must surface to the caller while the audit record remains.
func TestAwardXP_BalanceWriteFailureLeavesActivity(t *testing.T) {
	users, acts, roles := staffFixture()
	users.setErr = errors.New("connection reset")
	svc := newTestService(users, acts, roles)

	_, err := svc.AwardXP(context.Background(), AwardInput{CallerID: "prof-1", UserID: "aluno-1", XP: 50})
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("error = %v, want storage error surfaced verbatim", err)
	}
	if len(acts.inserted) != 1 {
		t.Errorf("inserted %d activities, want the committed record to remain", len(acts.inserted))
	}
}

func TestAwardXP_InsertFailureSkipsBalanceWrite(t *testing.T) {
	users, acts, roles := staffFixture()
	acts.insertErr = errors.New("relation does not exist")
	svc := newTestService(users, acts, roles)

	if _, err := svc.AwardXP(context.Background(), AwardInput{CallerID: "prof-1", UserID: "aluno-1", XP: 50}); err == nil {
		t.Fatal("expected insert failure to surface")
	}
	if len(users.set) != 0 {
		t.Errorf("balance written despite failed insert: %v", users.set)
	}
}

func TestAdjustXP_AdminOnly(t *testing.T) {
	users, acts, roles := staffFixture()
	svc := newTestService(users, acts, roles)

	if _, err := svc.AdjustXP(context.Background(), AwardInput{CallerID: "prof-1", UserID: "aluno-1", XP: -30}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("teacher adjustment error = %v, want %v", err, ErrPermissionDenied)
	}

	res, err := svc.AdjustXP(context.Background(), AwardInput{CallerID: "admin-1", UserID: "aluno-1", XP: -30})
	if err != nil {
		t.Fatalf("admin adjustment rejected: %v", err)
	}
	if res.NewXP != 70 {
		t.Errorf("new xp = %d, want 70", res.NewXP)
	}
	if len(acts.inserted) != 1 || acts.inserted[0].Type != ActivityTypeAdjustment {
		t.Errorf("expected one xp_adjustment record, got %+v", acts.inserted)
	}
}

func TestAdjustXP_ClampsBalanceAtZero(t *testing.T) {
	users, acts, roles := staffFixture()
	svc := newTestService(users, acts, roles)

	res, err := svc.AdjustXP(context.Background(), AwardInput{CallerID: "admin-1", UserID: "aluno-1", XP: -500})
	if err != nil {
		t.Fatalf("AdjustXP returned error: %v", err)
	}
	if res.NewXP != 0 {
		t.Errorf("new xp = %d, want 0", res.NewXP)
	}
}

func TestAdjustXP_RejectsZeroDelta(t *testing.T) {
	users, acts, roles := staffFixture()
	svc := newTestService(users, acts, roles)
	if _, err := svc.AdjustXP(context.Background(), AwardInput{CallerID: "admin-1", UserID: "aluno-1", XP: 0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestUserProgress_SelfRead(t *testing.T) {
	users, acts, roles := staffFixture()
	ref := time.Date(2025, time.March, 15, 18, 0, 0, 0, time.UTC)
	acts.history = []Activity{
		{XP: 50, CreatedAt: ref.Add(-time.Hour)},
		{XP: 25, CreatedAt: ref.AddDate(0, 0, -1)},
		{XP: 25, CreatedAt: ref.AddDate(0, 0, -2)},
	}
	users.xp["aluno-1"] = 1500
	svc := newTestService(users, acts, roles)

	view, err := svc.UserProgress(context.Background(), "aluno-1", "aluno-1")
	if err != nil {
		t.Fatalf("UserProgress returned error: %v", err)
	}
	if view.Tier.Name != "Bronze II" {
		t.Errorf("tier = %s, want Bronze II", view.Tier.Name)
	}
	if view.Progress.XPNeeded != 500 {
		t.Errorf("xp needed = %d, want 500", view.Progress.XPNeeded)
	}
	if view.Streak != 3 {
		t.Errorf("streak = %d, want 3", view.Streak)
	}
}

func TestUserProgress_StudentCannotReadOthers(t *testing.T) {
	users, acts, roles := staffFixture()
	users.tenants["aluno-2"] = "tenant-1"
	users.exists["aluno-2"] = true
	svc := newTestService(users, acts, roles)

	if _, err := svc.UserProgress(context.Background(), "aluno-1", "aluno-2"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("error = %v, want %v", err, ErrPermissionDenied)
	}
	if _, err := svc.UserProgress(context.Background(), "prof-1", "aluno-1"); err != nil {
		t.Errorf("teacher read rejected: %v", err)
	}
}

func TestUserProgress_UnknownUser(t *testing.T) {
	users, acts, roles := staffFixture()
	svc := newTestService(users, acts, roles)
	if _, err := svc.UserProgress(context.Background(), "prof-1", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want %v", err, ErrUserNotFound)
	}
}

func TestUserWeeklyReport_SumsPerDay(t *testing.T) {
	users, acts, roles := staffFixture()
	ref := time.Date(2025, time.March, 15, 18, 0, 0, 0, time.UTC)
	acts.history = []Activity{
		{XP: 50, CreatedAt: ref.Add(-time.Hour)},
		{XP: 20, CreatedAt: ref.Add(-2 * time.Hour)},
		{XP: 30, CreatedAt: ref.AddDate(0, 0, -3)},
		{XP: 99, CreatedAt: ref.AddDate(0, 0, -10)}, // outside the window
	}
	svc := newTestService(users, acts, roles)

	report, err := svc.UserWeeklyReport(context.Background(), "prof-1", "aluno-1")
	if err != nil {
		t.Fatalf("UserWeeklyReport returned error: %v", err)
	}
	if report.WeekXP != 100 {
		t.Errorf("week xp = %d, want 100", report.WeekXP)
	}
	if len(report.Days) != 7 {
		t.Fatalf("report has %d days, want 7", len(report.Days))
	}
	if got := report.Days[6].XP; got != 70 {
		t.Errorf("today's total = %d, want 70", got)
	}
	if got := report.Days[3].XP; got != 30 {
		t.Errorf("day -3 total = %d, want 30", got)
	}
}

// A spring-forward transition makes one local day 23 hours long; activities
// after it must still land in their own calendar day's bucket.
func TestUserWeeklyReport_DSTTransitionKeepsCalendarBuckets(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}

	users, acts, roles := staffFixture()
	// Clocks jumped forward on 2025-03-09; the window covers the transition.
	acts.history = []Activity{
		{XP: 40, CreatedAt: time.Date(2025, time.March, 10, 0, 30, 0, 0, loc)},
	}
	svc := newTestService(users, acts, roles)
	svc.now = func() time.Time {
		return time.Date(2025, time.March, 12, 18, 0, 0, 0, loc)
	}

	report, err := svc.UserWeeklyReport(context.Background(), "prof-1", "aluno-1")
	if err != nil {
		t.Fatalf("UserWeeklyReport returned error: %v", err)
	}
	// weekStart is March 6; the activity belongs to March 10, index 4.
	if got := report.Days[4].XP; got != 40 {
		t.Errorf("march 10 total = %d, want 40", got)
	}
	if got := report.Days[3].XP; got != 0 {
		t.Errorf("march 9 total = %d, want 0", got)
	}
}
