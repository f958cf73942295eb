package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
)

type fakeGuard struct {
	acquired map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{acquired: make(map[string]bool)}
}

func (g *fakeGuard) TryAcquire(ctx context.Context, triggerID, day string) bool {
	key := triggerID + ":" + day
	if g.acquired[key] {
		return false
	}
	g.acquired[key] = true
	return true
}

type fakePublisher struct {
	published []mqcontracts.CampaignScanPayload
	keys      []string
}

func (p *fakePublisher) Publish(routingKey, messageID string, payload any) error {
	p.keys = append(p.keys, routingKey)
	p.published = append(p.published, payload.(mqcontracts.CampaignScanPayload))
	return nil
}

func setupTestScheduler() (*Scheduler, *fakePublisher, *fakeGuard) {
	pub := &fakePublisher{}
	guard := newFakeGuard()
	s := New(nil, guard, pub, zap.NewNop())
	return s, pub, guard
}

func TestFireDue_MatchingMinute(t *testing.T) {
	s, pub, _ := setupTestScheduler()
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	s.fireDue(context.Background(), DefaultTriggers(), "02:00", "2026-03-10")

	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}
	got := pub.published[0]
	if got.Campaign != mqcontracts.TriggerMFAEnablement {
		t.Errorf("trigger = %q, want mfa_enablement", got.Campaign)
	}
	if got.JobID != "mfa_enablement:2026-03-10" {
		t.Errorf("job id = %q", got.JobID)
	}
	if got.Manual {
		t.Error("scheduled fire marked manual")
	}
	if got.TraceID == "" {
		t.Error("missing trace id")
	}
	if pub.keys[0] != mqcontracts.RoutingKeyCampaignScan {
		t.Errorf("routing key = %q", pub.keys[0])
	}
}

// The guard lets one fire per trigger per day through, so a second tick in
// the same minute (or a second replica) publishes nothing.
func TestFireDue_OncePerDay(t *testing.T) {
	s, pub, _ := setupTestScheduler()
	now := time.Date(2026, 3, 10, 2, 10, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	triggers := DefaultTriggers()
	s.fireDue(context.Background(), triggers, "02:10", "2026-03-10")
	s.fireDue(context.Background(), triggers, "02:10", "2026-03-10")

	if len(pub.published) != 1 {
		t.Errorf("published = %d, want 1", len(pub.published))
	}

	// The next day fires again.
	s.fireDue(context.Background(), triggers, "02:10", "2026-03-11")
	if len(pub.published) != 2 {
		t.Errorf("published across days = %d, want 2", len(pub.published))
	}
}

func TestFireDue_NonMatchingMinute(t *testing.T) {
	s, pub, _ := setupTestScheduler()
	s.SetClock(func() time.Time { return time.Date(2026, 3, 10, 2, 5, 0, 0, time.UTC) })

	s.fireDue(context.Background(), DefaultTriggers(), "02:05", "2026-03-10")

	if len(pub.published) != 0 {
		t.Errorf("published = %d, want 0", len(pub.published))
	}
}

func TestDefaultTriggers_DistinctMinutes(t *testing.T) {
	triggers := DefaultTriggers()
	if len(triggers) != 5 {
		t.Fatalf("triggers = %d, want 5", len(triggers))
	}

	seen := make(map[string]string)
	for _, tr := range triggers {
		if prev, ok := seen[tr.FireAt]; ok {
			t.Errorf("triggers %s and %s share fire time %s", prev, tr.ID, tr.FireAt)
		}
		seen[tr.FireAt] = tr.ID
	}
}

func TestTriggerNow(t *testing.T) {
	s, pub, _ := setupTestScheduler()
	s.SetClock(func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) })

	jobID, err := s.TriggerNow(context.Background(), mqcontracts.TriggerTrialExpiration)
	if err != nil {
		t.Fatalf("TriggerNow failed: %v", err)
	}
	if !strings.HasPrefix(jobID, "manual:trial_expiration:") {
		t.Errorf("job id = %q", jobID)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}
	if !pub.published[0].Manual {
		t.Error("manual fire not flagged")
	}

	// Manual fires bypass the daily guard: firing again still publishes.
	if _, err := s.TriggerNow(context.Background(), mqcontracts.TriggerTrialExpiration); err != nil {
		t.Fatalf("second TriggerNow failed: %v", err)
	}
	if len(pub.published) != 2 {
		t.Errorf("published = %d, want 2", len(pub.published))
	}
}
