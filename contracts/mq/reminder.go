package mqcontracts

import "time"

// Routing keys for the reminder pipeline.
const (
	RoutingKeyCampaignScan    = "reminder.scan"
	RoutingKeyReminderDeliver = "reminder.deliver"
)

// Durable queue names bound to the routing keys above.
const (
	QueueCampaignScan    = "reminder.scan.queue"
	QueueReminderDeliver = "reminder.deliver.queue"
)

// Trigger ids the scheduler fires. The first four map one-to-one onto
// reminder campaigns; trial_downgrade is a pure lifecycle pass with no
// reminder of its own.
const (
	TriggerMFAEnablement     = "mfa_enablement"
	TriggerPhoneVerification = "phone_verification"
	TriggerTrialExpiration   = "trial_expiration"
	TriggerTrialDowngrade    = "trial_downgrade"
	TriggerTenantDeletion    = "tenant_deletion"
)

// CampaignScanPayload asks the worker to run one eligibility scan.
type CampaignScanPayload struct {
	JobID    string    `json:"job_id"`
	Campaign string    `json:"campaign"`
	Manual   bool      `json:"manual"`
	FiredAt  time.Time `json:"fired_at"`
	TraceID  string    `json:"trace_id,omitempty"`
}

// ReminderDeliveryPayload is one per-recipient delivery job. JobID is the
// deterministic composition of subject, campaign and stage, so a scan that
// runs twice enqueues the same identity both times.
type ReminderDeliveryPayload struct {
	JobID         string    `json:"job_id"`
	Campaign      string    `json:"campaign"`
	Stage         string    `json:"stage"`
	UserID        string    `json:"user_id,omitempty"`
	TenantID      string    `json:"tenant_id"`
	RecipientID   string    `json:"recipient_id"`
	DeadlineAt    time.Time `json:"deadline_at"`
	DaysRemaining int       `json:"days_remaining"`
	TraceID       string    `json:"trace_id,omitempty"`
}
