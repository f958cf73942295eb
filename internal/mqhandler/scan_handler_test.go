package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/policy"
)

type fakeScanner struct {
	scanned []policy.Campaign
	err     error
}

func (s *fakeScanner) Scan(ctx context.Context, campaign policy.Campaign) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.scanned = append(s.scanned, campaign)
	return 1, nil
}

type fakeLifecycle struct {
	downgrades int
	deletions  int
}

func (l *fakeLifecycle) DowngradeExpiredTrials(ctx context.Context) (int, error) {
	l.downgrades++
	return 1, nil
}

func (l *fakeLifecycle) ExecuteDueDeletions(ctx context.Context) (int, error) {
	l.deletions++
	return 1, nil
}

func setupScanHandler() (*ScanHandler, *fakeScanner, *fakeLifecycle, *fakeDeduper) {
	scanner := &fakeScanner{}
	lc := &fakeLifecycle{}
	ded := newFakeDeduper()
	h := NewScanHandler(scanner, lc, ded, zap.NewNop())
	return h, scanner, lc, ded
}

func scanPayload(trigger, jobID string) json.RawMessage {
	data, _ := json.Marshal(mqcontracts.CampaignScanPayload{
		JobID:    jobID,
		Campaign: trigger,
		FiredAt:  time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC),
	})
	return data
}

func TestScanHandler_DispatchesCampaigns(t *testing.T) {
	cases := []struct {
		trigger string
		want    policy.Campaign
	}{
		{mqcontracts.TriggerMFAEnablement, policy.CampaignMFAEnablement},
		{mqcontracts.TriggerPhoneVerification, policy.CampaignPhoneVerification},
		{mqcontracts.TriggerTrialExpiration, policy.CampaignTrialExpiration},
	}

	for _, tc := range cases {
		t.Run(tc.trigger, func(t *testing.T) {
			h, scanner, _, _ := setupScanHandler()

			if err := h.Handle(context.Background(), scanPayload(tc.trigger, "job-"+tc.trigger)); err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if len(scanner.scanned) != 1 || scanner.scanned[0] != tc.want {
				t.Errorf("scanned = %v, want [%s]", scanner.scanned, tc.want)
			}
		})
	}
}

func TestScanHandler_TrialDowngradeRunsLifecycleOnly(t *testing.T) {
	h, scanner, lc, _ := setupScanHandler()

	if err := h.Handle(context.Background(), scanPayload(mqcontracts.TriggerTrialDowngrade, "job-1")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if lc.downgrades != 1 {
		t.Errorf("downgrades = %d, want 1", lc.downgrades)
	}
	if len(scanner.scanned) != 0 {
		t.Errorf("downgrade trigger ran a scan: %v", scanner.scanned)
	}
}

// The deletion trigger reminds tenants still in the window, then removes the
// ones whose window elapsed.
func TestScanHandler_TenantDeletionRunsBoth(t *testing.T) {
	h, scanner, lc, _ := setupScanHandler()

	if err := h.Handle(context.Background(), scanPayload(mqcontracts.TriggerTenantDeletion, "job-1")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(scanner.scanned) != 1 || scanner.scanned[0] != policy.CampaignTenantDeletion {
		t.Errorf("scanned = %v", scanner.scanned)
	}
	if lc.deletions != 1 {
		t.Errorf("deletions = %d, want 1", lc.deletions)
	}
}

func TestScanHandler_DuplicateFireSkipped(t *testing.T) {
	h, scanner, _, _ := setupScanHandler()
	data := scanPayload(mqcontracts.TriggerMFAEnablement, "job-1")

	if err := h.Handle(context.Background(), data); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}
	if err := h.Handle(context.Background(), data); err != nil {
		t.Fatalf("duplicate Handle failed: %v", err)
	}
	if len(scanner.scanned) != 1 {
		t.Errorf("scans = %d, want 1", len(scanner.scanned))
	}
}

func TestScanHandler_ScanErrorRequeues(t *testing.T) {
	h, scanner, _, _ := setupScanHandler()
	scanner.err = errors.New("connection refused")

	if err := h.Handle(context.Background(), scanPayload(mqcontracts.TriggerMFAEnablement, "job-1")); err == nil {
		t.Fatal("want requeue error")
	}
}

// A scan that fails transiently must run again when the broker redelivers the
// trigger message; the dedup hold from the failed attempt cannot stand.
func TestScanHandler_RetryableFailureRerunsOnRedelivery(t *testing.T) {
	h, scanner, _, _ := setupScanHandler()
	data := scanPayload(mqcontracts.TriggerMFAEnablement, "job-1")

	scanner.err = errors.New("connection refused")
	if err := h.Handle(context.Background(), data); err == nil {
		t.Fatal("want requeue error")
	}

	scanner.err = nil
	if err := h.Handle(context.Background(), data); err != nil {
		t.Fatalf("redelivered Handle failed: %v", err)
	}
	if len(scanner.scanned) != 1 {
		t.Errorf("scans after redelivery = %d, want 1", len(scanner.scanned))
	}
}

func TestScanHandler_TerminalScanErrorDropped(t *testing.T) {
	h, scanner, _, ded := setupScanHandler()
	scanner.err = fmt.Errorf("list candidates: %w", pgx.ErrNoRows)

	if err := h.Handle(context.Background(), scanPayload(mqcontracts.TriggerMFAEnablement, "job-1")); err != nil {
		t.Fatalf("terminal scan error should ack, got %v", err)
	}
	if !ded.seen["scan:job-1"] {
		t.Error("terminal failure must keep the fire hold")
	}
}

func TestScanHandler_UnknownTriggerDropped(t *testing.T) {
	h, scanner, _, _ := setupScanHandler()

	if err := h.Handle(context.Background(), scanPayload("bogus_trigger", "job-1")); err != nil {
		t.Fatalf("unknown trigger should ack, got %v", err)
	}
	if len(scanner.scanned) != 0 {
		t.Error("unknown trigger must not scan")
	}
}
