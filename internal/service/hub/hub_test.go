package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/policy"
	"notifyhub/internal/repository"
	"notifyhub/internal/service/mailer"
)

type mockUsers struct {
	users map[string]*model.User
}

func (m *mockUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type mockWriter struct {
	created []*model.Notification
	err     error
}

func (m *mockWriter) Create(ctx context.Context, n *model.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, n)
	return nil
}

type mockResolver struct {
	emailEnabled bool
	inAppEnabled bool
	suppressed   bool
}

func (m *mockResolver) IsChannelEnabled(ctx context.Context, userID, tenantID string, category policy.Category, channel policy.Channel) (bool, error) {
	if policy.IsAlwaysSend(category) {
		return true, nil
	}
	switch channel {
	case policy.ChannelEmail:
		return m.emailEnabled, nil
	case policy.ChannelInApp:
		return m.inAppEnabled, nil
	}
	return true, nil
}

func (m *mockResolver) EmailSuppressedNow(ctx context.Context, userID, tenantID string, now time.Time) (bool, error) {
	return m.suppressed, nil
}

type mockSender struct {
	result mailer.SendResult
	sent   []mailer.Message
}

func (m *mockSender) Send(ctx context.Context, msg mailer.Message) mailer.SendResult {
	m.sent = append(m.sent, msg)
	return m.result
}

func setupTestHub(resolver *mockResolver, sender *mockSender) (*Hub, *mockWriter) {
	users := &mockUsers{users: map[string]*model.User{
		"u1": {ID: "u1", TenantID: "t1", Email: "u1@example.com"},
	}}
	writer := &mockWriter{}
	h := New(users, writer, resolver, sender, zap.NewNop())
	return h, writer
}

func testRequest() Request {
	return Request{
		UserID:       "u1",
		TenantID:     "t1",
		Category:     policy.CategoryWorkflowUpdate,
		Title:        "Workflow finished",
		Message:      "Your workflow completed.",
		Severity:     policy.SeverityInfo,
		EmailSubject: "Workflow finished",
		EmailHTML:    "<p>Your workflow completed.</p>",
	}
}

func TestNotify_BothChannels(t *testing.T) {
	resolver := &mockResolver{emailEnabled: true, inAppEnabled: true}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	res := h.Notify(context.Background(), testRequest())

	if !res.EmailSent || !res.InAppSent {
		t.Errorf("result = %+v, want both channels sent", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(sender.sent))
	}
	if sender.sent[0].To != "u1@example.com" {
		t.Errorf("email to = %q", sender.sent[0].To)
	}
	if len(writer.created) != 1 {
		t.Fatalf("in-app created = %d, want 1", len(writer.created))
	}
	if got := writer.created[0].Metadata["email_sent"]; got != true {
		t.Errorf("metadata email_sent = %v, want true", got)
	}
}

// An enabled email that fails to send must fall back to in-app even when the
// user has in-app disabled.
func TestNotify_FallbackOnEmailFailure(t *testing.T) {
	resolver := &mockResolver{emailEnabled: true, inAppEnabled: false}
	sender := &mockSender{result: mailer.SendResult{Sent: false, Error: "provider 502"}}
	h, writer := setupTestHub(resolver, sender)

	res := h.Notify(context.Background(), testRequest())

	if res.EmailSent {
		t.Error("email should have failed")
	}
	if !res.InAppSent {
		t.Error("fallback in-app notification missing")
	}
	if len(writer.created) != 1 {
		t.Fatalf("in-app created = %d, want 1", len(writer.created))
	}
	meta := writer.created[0].Metadata
	if meta["email_sent"] != false || meta["email_error"] != "provider 502" {
		t.Errorf("fallback metadata = %v", meta)
	}
}

// Email disabled by preference is not a failure; no fallback fires.
func TestNotify_NoFallbackWhenEmailDisabled(t *testing.T) {
	resolver := &mockResolver{emailEnabled: false, inAppEnabled: false}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	res := h.Notify(context.Background(), testRequest())

	if res.EmailSent || res.InAppSent {
		t.Errorf("result = %+v, want nothing delivered", res)
	}
	if len(sender.sent) != 0 {
		t.Errorf("emails sent = %d, want 0", len(sender.sent))
	}
	if len(writer.created) != 0 {
		t.Errorf("in-app created = %d, want 0", len(writer.created))
	}
}

// Suppression by pause/DND holds email back without triggering the fallback.
func TestNotify_SuppressionIsNotFailure(t *testing.T) {
	resolver := &mockResolver{emailEnabled: true, inAppEnabled: false, suppressed: true}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	res := h.Notify(context.Background(), testRequest())

	if res.EmailSent {
		t.Error("suppressed email should not be sent")
	}
	if res.InAppSent || len(writer.created) != 0 {
		t.Error("suppression must not trigger the in-app fallback")
	}
	if len(sender.sent) != 0 {
		t.Errorf("emails sent = %d, want 0", len(sender.sent))
	}
}

func TestNotify_AlwaysSendBypassesPreferences(t *testing.T) {
	resolver := &mockResolver{emailEnabled: false, inAppEnabled: false, suppressed: true}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	req := testRequest()
	req.Category = policy.CategoryPasswordChanged
	res := h.Notify(context.Background(), req)

	if !res.EmailSent {
		t.Error("ALWAYS_SEND email was suppressed")
	}
	if !res.InAppSent || len(writer.created) != 1 {
		t.Error("ALWAYS_SEND in-app notification missing")
	}
}

func TestNotify_MissingUser(t *testing.T) {
	resolver := &mockResolver{emailEnabled: true, inAppEnabled: true}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	req := testRequest()
	req.UserID = "ghost"
	res := h.Notify(context.Background(), req)

	if res.EmailSent || res.InAppSent {
		t.Errorf("result = %+v, want nothing delivered", res)
	}
	if res.EmailError == "" || res.InAppError == "" {
		t.Error("missing user should be reported on both channels")
	}
	if len(sender.sent) != 0 || len(writer.created) != 0 {
		t.Error("missing user must be a no-op")
	}
}

// Account-level notifications have no tenant; nothing to scope in-app to.
func TestNotify_NoTenantSkipsInApp(t *testing.T) {
	resolver := &mockResolver{emailEnabled: true, inAppEnabled: true}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	req := testRequest()
	req.TenantID = ""
	req.Category = policy.CategoryPasswordChanged
	res := h.Notify(context.Background(), req)

	if !res.EmailSent {
		t.Error("email should still go out")
	}
	if res.InAppSent || len(writer.created) != 0 {
		t.Error("no-tenant request must not create an in-app notification")
	}
}

func TestNotify_NoEmailContentSkipsEmail(t *testing.T) {
	resolver := &mockResolver{emailEnabled: true, inAppEnabled: true}
	sender := &mockSender{result: mailer.SendResult{Sent: true}}
	h, writer := setupTestHub(resolver, sender)

	req := testRequest()
	req.EmailSubject = ""
	req.EmailHTML = ""
	res := h.Notify(context.Background(), req)

	if res.EmailSent || len(sender.sent) != 0 {
		t.Error("request without email content must not send email")
	}
	if !res.InAppSent || len(writer.created) != 1 {
		t.Error("in-app channel should still deliver")
	}
}
