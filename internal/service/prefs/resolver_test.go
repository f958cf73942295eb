package prefs

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
)

type mockPreferenceRepo struct {
	prefs          map[string]*model.NotificationPreference
	createCalls    int
	getErr         error
	pauseArg       *time.Time
	pauseCallCount int
}

func newMockPreferenceRepo() *mockPreferenceRepo {
	return &mockPreferenceRepo{prefs: make(map[string]*model.NotificationPreference)}
}

func prefKey(userID, tenantID string) string {
	return userID + "|" + tenantID
}

func (m *mockPreferenceRepo) Get(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.prefs[prefKey(userID, tenantID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *mockPreferenceRepo) CreateDefault(ctx context.Context, userID, tenantID string) (*model.NotificationPreference, error) {
	m.createCalls++
	// Mirrors the store: a concurrent insert is absorbed, the stored row
	// wins.
	if p, ok := m.prefs[prefKey(userID, tenantID)]; ok {
		return p, nil
	}
	p := model.DefaultPreference(userID, tenantID)
	m.prefs[prefKey(userID, tenantID)] = p
	return p, nil
}

func (m *mockPreferenceRepo) Update(ctx context.Context, p *model.NotificationPreference) error {
	m.prefs[prefKey(p.UserID, p.TenantID)] = p
	return nil
}

func (m *mockPreferenceRepo) SetPausedUntil(ctx context.Context, userID, tenantID string, until *time.Time) error {
	m.pauseArg = until
	m.pauseCallCount++
	if p, ok := m.prefs[prefKey(userID, tenantID)]; ok {
		p.PausedUntil = until
	}
	return nil
}

func setupTestPrefs() (*Service, *mockPreferenceRepo) {
	repo := newMockPreferenceRepo()
	return NewService(repo, zap.NewNop()), repo
}

func TestIsChannelEnabled_AlwaysSendIgnoresPreferences(t *testing.T) {
	svc, repo := setupTestPrefs()

	p := model.DefaultPreference("u1", "t1")
	p.EmailEnabled = false
	p.InAppEnabled = false
	repo.prefs[prefKey("u1", "t1")] = p

	for _, cat := range []policy.Category{
		policy.CategoryPasswordChanged,
		policy.CategoryMFADisabled,
		policy.CategoryNewLogin,
		policy.CategoryTenantDeletion,
	} {
		for _, ch := range []policy.Channel{policy.ChannelEmail, policy.ChannelInApp} {
			enabled, err := svc.IsChannelEnabled(context.Background(), "u1", "t1", cat, ch)
			if err != nil {
				t.Fatalf("IsChannelEnabled(%s, %s) failed: %v", cat, ch, err)
			}
			if !enabled {
				t.Errorf("category %s channel %s suppressed despite ALWAYS_SEND", cat, ch)
			}
		}
	}
}

func TestIsChannelEnabled_MissingRowFailsOpen(t *testing.T) {
	svc, _ := setupTestPrefs()

	enabled, err := svc.IsChannelEnabled(context.Background(), "uX", "t1",
		policy.CategoryWorkflowUpdate, policy.ChannelEmail)
	if err != nil {
		t.Fatalf("IsChannelEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("missing preference row should default to enabled")
	}
}

func TestIsChannelEnabled_GlobalToggle(t *testing.T) {
	svc, repo := setupTestPrefs()

	p := model.DefaultPreference("u1", "t1")
	p.EmailEnabled = false
	repo.prefs[prefKey("u1", "t1")] = p

	enabled, err := svc.IsChannelEnabled(context.Background(), "u1", "t1",
		policy.CategoryWorkflowUpdate, policy.ChannelEmail)
	if err != nil {
		t.Fatalf("IsChannelEnabled failed: %v", err)
	}
	if enabled {
		t.Error("disabled global email toggle should suppress the channel")
	}

	enabled, err = svc.IsChannelEnabled(context.Background(), "u1", "t1",
		policy.CategoryWorkflowUpdate, policy.ChannelInApp)
	if err != nil {
		t.Fatalf("IsChannelEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("in-app channel should be unaffected by the email toggle")
	}
}

func TestIsChannelEnabled_CategoryOverride(t *testing.T) {
	svc, repo := setupTestPrefs()

	off := false
	p := model.DefaultPreference("u1", "t1")
	p.Overrides = map[policy.Category]model.ChannelOverride{
		policy.CategoryWorkflowUpdate: {Email: &off},
	}
	repo.prefs[prefKey("u1", "t1")] = p

	enabled, err := svc.IsChannelEnabled(context.Background(), "u1", "t1",
		policy.CategoryWorkflowUpdate, policy.ChannelEmail)
	if err != nil {
		t.Fatalf("IsChannelEnabled failed: %v", err)
	}
	if enabled {
		t.Error("per-category override should suppress email")
	}

	// Other categories are untouched.
	enabled, err = svc.IsChannelEnabled(context.Background(), "u1", "t1",
		policy.CategorySystemAnnouncement, policy.ChannelEmail)
	if err != nil {
		t.Fatalf("IsChannelEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("override should not leak to other categories")
	}
}

// Eligibility does not consult DND; timing suppression is EmailSuppressedNow.
func TestIsChannelEnabled_DNDNotConsulted(t *testing.T) {
	svc, repo := setupTestPrefs()

	p := model.DefaultPreference("u1", "t1")
	p.DNDEnabled = true
	p.DNDStart = "00:00"
	p.DNDEnd = "23:59"
	repo.prefs[prefKey("u1", "t1")] = p

	enabled, err := svc.IsChannelEnabled(context.Background(), "u1", "t1",
		policy.CategoryWorkflowUpdate, policy.ChannelEmail)
	if err != nil {
		t.Fatalf("IsChannelEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("DND must not affect channel eligibility")
	}
}

func TestEmailSuppressedNow(t *testing.T) {
	svc, repo := setupTestPrefs()

	p := model.DefaultPreference("u1", "t1")
	p.DNDEnabled = true
	p.DNDStart = "22:00"
	p.DNDEnd = "07:00"
	repo.prefs[prefKey("u1", "t1")] = p

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"inside window before midnight", time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), true},
		{"inside window after midnight", time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), true},
		{"outside window", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), false},
		{"window start boundary", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC), true},
		{"window end boundary", time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.EmailSuppressedNow(context.Background(), "u1", "t1", tc.now)
			if err != nil {
				t.Fatalf("EmailSuppressedNow failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("suppressed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEmailSuppressedNow_Paused(t *testing.T) {
	svc, repo := setupTestPrefs()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	until := now.Add(2 * time.Hour)
	p := model.DefaultPreference("u1", "t1")
	p.PausedUntil = &until
	repo.prefs[prefKey("u1", "t1")] = p

	suppressed, err := svc.EmailSuppressedNow(context.Background(), "u1", "t1", now)
	if err != nil {
		t.Fatalf("EmailSuppressedNow failed: %v", err)
	}
	if !suppressed {
		t.Error("active pause should suppress email")
	}

	suppressed, err = svc.EmailSuppressedNow(context.Background(), "u1", "t1", until.Add(time.Minute))
	if err != nil {
		t.Fatalf("EmailSuppressedNow failed: %v", err)
	}
	if suppressed {
		t.Error("expired pause should not suppress email")
	}
}
