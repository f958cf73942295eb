package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
	"notifyhub/internal/service/hub"
)

type fakeDeduper struct {
	seen     map[string]bool
	released []string
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (d *fakeDeduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	key := scope + ":" + id
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *fakeDeduper) Release(ctx context.Context, scope, id string) {
	key := scope + ":" + id
	delete(d.seen, key)
	d.released = append(d.released, key)
}

type fakeRetries struct {
	counts map[string]int64
	resets []string
}

func newFakeRetries() *fakeRetries {
	return &fakeRetries{counts: make(map[string]int64)}
}

func (r *fakeRetries) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	r.counts[key]++
	return r.counts[key], nil
}

func (r *fakeRetries) Reset(ctx context.Context, key string) error {
	delete(r.counts, key)
	r.resets = append(r.resets, key)
	return nil
}

type fakeLimiter struct {
	allow bool
}

func (l *fakeLimiter) Allow(ctx context.Context, name string) bool {
	return l.allow
}

type fakeLedger struct {
	existing  map[string]bool
	inserted  []*model.ReminderLog
	insertErr error
	existsErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{existing: make(map[string]bool)}
}

func ledgerTestKey(userID, tenantID *string, campaign policy.Campaign, stage policy.Stage) string {
	u, t := "", ""
	if userID != nil {
		u = *userID
	}
	if tenantID != nil {
		t = *tenantID
	}
	return u + "|" + t + "|" + string(campaign) + "|" + string(stage)
}

func (l *fakeLedger) Insert(ctx context.Context, entry *model.ReminderLog) (bool, error) {
	if l.insertErr != nil {
		return false, l.insertErr
	}
	key := ledgerTestKey(entry.UserID, entry.TenantID, entry.Campaign, entry.Stage)
	if l.existing[key] {
		return false, nil
	}
	l.existing[key] = true
	l.inserted = append(l.inserted, entry)
	return true, nil
}

func (l *fakeLedger) Exists(ctx context.Context, userID, tenantID *string, campaign policy.Campaign, stage policy.Stage) (bool, error) {
	if l.existsErr != nil {
		return false, l.existsErr
	}
	return l.existing[ledgerTestKey(userID, tenantID, campaign, stage)], nil
}

type fakeDirectory struct {
	users map[string]*model.User
}

func (d *fakeDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeHub struct {
	result   hub.Result
	requests []hub.Request
}

func (h *fakeHub) Notify(ctx context.Context, req hub.Request) hub.Result {
	h.requests = append(h.requests, req)
	return h.result
}

type fakeDLQ struct {
	parked []string
}

func (d *fakeDLQ) PublishToDLQ(routingKey, messageID string, payload []byte, originalError string) error {
	d.parked = append(d.parked, messageID)
	return nil
}

type deliveryFixture struct {
	handler *DeliveryHandler
	ledger  *fakeLedger
	hub     *fakeHub
	dlq     *fakeDLQ
	deduper *fakeDeduper
	retries *fakeRetries
	limiter *fakeLimiter
}

func setupDeliveryHandler() *deliveryFixture {
	f := &deliveryFixture{
		ledger:  newFakeLedger(),
		hub:     &fakeHub{result: hub.Result{EmailSent: true, InAppSent: true}},
		dlq:     &fakeDLQ{},
		deduper: newFakeDeduper(),
		retries: newFakeRetries(),
		limiter: &fakeLimiter{allow: true},
	}
	directory := &fakeDirectory{users: map[string]*model.User{
		"u1": {ID: "u1", TenantID: "t1", Email: "u1@example.com"},
	}}
	f.handler = NewDeliveryHandler(
		f.ledger, directory, f.hub, f.dlq,
		f.deduper, f.retries, f.limiter, 3, zap.NewNop(),
	)
	return f
}

func deliveryPayload() mqcontracts.ReminderDeliveryPayload {
	return mqcontracts.ReminderDeliveryPayload{
		JobID:         "mfa_enablement:first:t1:u1",
		Campaign:      "mfa_enablement",
		Stage:         "first",
		UserID:        "u1",
		TenantID:      "t1",
		RecipientID:   "u1",
		DeadlineAt:    time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC),
		DaysRemaining: 3,
	}
}

func encode(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestDeliveryHandler_HappyPath(t *testing.T) {
	f := setupDeliveryHandler()

	if err := f.handler.Handle(context.Background(), encode(t, deliveryPayload())); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(f.hub.requests) != 1 {
		t.Fatalf("notify calls = %d, want 1", len(f.hub.requests))
	}
	req := f.hub.requests[0]
	if req.Category != policy.CategoryMFAEnablement {
		t.Errorf("category = %q", req.Category)
	}
	if req.EmailSubject == "" || req.Title == "" {
		t.Error("content not composed")
	}

	if len(f.ledger.inserted) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(f.ledger.inserted))
	}
	entry := f.ledger.inserted[0]
	if !entry.EmailSent || !entry.InAppSent {
		t.Errorf("ledger outcome = %+v", entry)
	}
	if entry.UserID == nil || *entry.UserID != "u1" {
		t.Error("ledger user key missing")
	}
	if len(f.retries.resets) != 1 {
		t.Errorf("retry resets = %d, want 1", len(f.retries.resets))
	}
}

func TestDeliveryHandler_DuplicateJobSkipped(t *testing.T) {
	f := setupDeliveryHandler()
	data := encode(t, deliveryPayload())

	if err := f.handler.Handle(context.Background(), data); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}
	if err := f.handler.Handle(context.Background(), data); err != nil {
		t.Fatalf("duplicate Handle failed: %v", err)
	}

	if len(f.hub.requests) != 1 {
		t.Errorf("notify calls = %d, want 1", len(f.hub.requests))
	}
}

// A stage already in the ledger is acked without contacting the recipient.
func TestDeliveryHandler_LedgerBlocksRepeat(t *testing.T) {
	f := setupDeliveryHandler()
	u, tn := "u1", "t1"
	f.ledger.existing[ledgerTestKey(&u, &tn, policy.CampaignMFAEnablement, policy.StageFirst)] = true

	if err := f.handler.Handle(context.Background(), encode(t, deliveryPayload())); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(f.hub.requests) != 0 {
		t.Errorf("notify calls = %d, want 0", len(f.hub.requests))
	}
}

func TestDeliveryHandler_MissingRecipientDropped(t *testing.T) {
	f := setupDeliveryHandler()
	payload := deliveryPayload()
	payload.RecipientID = "ghost"
	payload.UserID = "ghost"
	payload.JobID = "mfa_enablement:first:t1:ghost"

	if err := f.handler.Handle(context.Background(), encode(t, payload)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(f.hub.requests) != 0 {
		t.Error("missing recipient must be a no-op")
	}
	if len(f.ledger.inserted) != 0 {
		t.Error("no ledger row for a dropped job")
	}
	if len(f.dlq.parked) != 0 {
		t.Error("dropped job must not dead-letter")
	}
}

func TestDeliveryHandler_ExhaustedRetriesDeadLetter(t *testing.T) {
	f := setupDeliveryHandler()
	payload := deliveryPayload()
	f.retries.counts["retry:deliver:"+payload.JobID] = 3

	if err := f.handler.Handle(context.Background(), encode(t, payload)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(f.dlq.parked) != 1 || f.dlq.parked[0] != payload.JobID {
		t.Errorf("dead-lettered = %v, want [%s]", f.dlq.parked, payload.JobID)
	}
	if len(f.hub.requests) != 0 {
		t.Error("exhausted job must not be delivered")
	}
}

// A rate-limited job requeues immediately without consuming the dedup key or
// a retry attempt.
func TestDeliveryHandler_RateLimitedRequeuesUntouched(t *testing.T) {
	f := setupDeliveryHandler()
	f.limiter.allow = false

	start := time.Now()
	err := f.handler.Handle(context.Background(), encode(t, deliveryPayload()))
	if err == nil {
		t.Fatal("want requeue error")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("rate-limited handle blocked for %v", elapsed)
	}
	if len(f.deduper.seen) != 0 {
		t.Error("rate-limited job must not consume the dedup key")
	}
	if len(f.retries.counts) != 0 {
		t.Error("rate-limited job must not count as a retry")
	}
}

// A ledger lookup failure requeues and releases the dedup hold so the retry
// is not blocked.
func TestDeliveryHandler_RetryableErrorRequeues(t *testing.T) {
	f := setupDeliveryHandler()
	f.ledger.existsErr = errors.New("connection refused")

	err := f.handler.Handle(context.Background(), encode(t, deliveryPayload()))
	if err == nil {
		t.Fatal("want requeue error")
	}
	if len(f.deduper.released) != 1 {
		t.Errorf("dedup releases = %d, want 1", len(f.deduper.released))
	}
}

// An error that would fail identically on every redelivery goes to the DLQ
// instead of cycling through the retry counter.
func TestDeliveryHandler_TerminalErrorDeadLetters(t *testing.T) {
	f := setupDeliveryHandler()
	f.ledger.existsErr = errors.New("ERROR: invalid input syntax for type uuid (SQLSTATE 22P02)")
	payload := deliveryPayload()

	if err := f.handler.Handle(context.Background(), encode(t, payload)); err != nil {
		t.Fatalf("terminal error should ack, got %v", err)
	}
	if len(f.dlq.parked) != 1 || f.dlq.parked[0] != payload.JobID {
		t.Errorf("dead-lettered = %v, want [%s]", f.dlq.parked, payload.JobID)
	}
	if len(f.hub.requests) != 0 {
		t.Error("terminal job must not be delivered")
	}
	if len(f.deduper.released) != 0 {
		t.Error("dead-lettered job must keep its dedup hold")
	}
	if len(f.retries.resets) != 1 {
		t.Errorf("retry resets = %d, want 1", len(f.retries.resets))
	}
}

// Once delivery was attempted, a failing ledger write still acks the job.
func TestDeliveryHandler_LedgerWriteFailureStillAcks(t *testing.T) {
	f := setupDeliveryHandler()
	f.ledger.insertErr = errors.New("db down")

	if err := f.handler.Handle(context.Background(), encode(t, deliveryPayload())); err != nil {
		t.Fatalf("Handle should ack after delivery attempt, got %v", err)
	}
	if len(f.hub.requests) != 1 {
		t.Errorf("notify calls = %d, want 1", len(f.hub.requests))
	}
}

func TestDeliveryHandler_MalformedPayloadDropped(t *testing.T) {
	f := setupDeliveryHandler()

	if err := f.handler.Handle(context.Background(), json.RawMessage(`{not json`)); err != nil {
		t.Fatalf("malformed payload should ack, got %v", err)
	}
	if len(f.hub.requests) != 0 {
		t.Error("malformed payload must not deliver")
	}
}

func TestDeliveryHandler_TenantCampaignLedgerKey(t *testing.T) {
	f := setupDeliveryHandler()
	directory := &fakeDirectory{users: map[string]*model.User{
		"owner1": {ID: "owner1", TenantID: "t9", Email: "o@example.com"},
	}}
	f.handler.users = directory

	payload := mqcontracts.ReminderDeliveryPayload{
		JobID:         "tenant_deletion:final:t9:",
		Campaign:      "tenant_deletion",
		Stage:         "final",
		TenantID:      "t9",
		RecipientID:   "owner1",
		DeadlineAt:    time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC),
		DaysRemaining: 1,
	}

	if err := f.handler.Handle(context.Background(), encode(t, payload)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(f.ledger.inserted) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(f.ledger.inserted))
	}
	entry := f.ledger.inserted[0]
	if entry.UserID != nil {
		t.Error("tenant campaign must not key the ledger by user")
	}
	if entry.TenantID == nil || *entry.TenantID != "t9" {
		t.Error("tenant key missing")
	}
}
