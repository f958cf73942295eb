package policy

// Category is the closed set of notification categories. Every category must
// have an entry in Classify; the policy table is authoritative and not
// user-editable.
type Category string

const (
	// Security events. These are never filterable by any preference.
	CategoryPasswordChanged Category = "password_changed"
	CategoryMFAEnabled      Category = "mfa_enabled"
	CategoryMFADisabled     Category = "mfa_disabled"
	CategoryNewLogin        Category = "new_login"

	// Reminder campaigns.
	CategoryMFAEnablement     Category = "mfa_enablement"
	CategoryPhoneVerification Category = "phone_verification"
	CategoryTrialExpiration   Category = "trial_expiration"
	CategoryTenantDeletion    Category = "tenant_deletion"

	// Tenant lifecycle.
	CategoryTrialExpired Category = "trial_expired"

	// Product surface.
	CategoryWorkspaceInvite    Category = "workspace_invite"
	CategorySystemAnnouncement Category = "system_announcement"
	CategoryWorkflowUpdate     Category = "workflow_update"
	CategoryIntegrationFailure Category = "integration_failure"
)

// AllCategories lists every known category. Tests assert that Classify and
// TypeOf cover each one so a new category cannot silently fall through.
var AllCategories = []Category{
	CategoryPasswordChanged,
	CategoryMFAEnabled,
	CategoryMFADisabled,
	CategoryNewLogin,
	CategoryMFAEnablement,
	CategoryPhoneVerification,
	CategoryTrialExpiration,
	CategoryTenantDeletion,
	CategoryTrialExpired,
	CategoryWorkspaceInvite,
	CategorySystemAnnouncement,
	CategoryWorkflowUpdate,
	CategoryIntegrationFailure,
}

// Classification decides whether a category can be suppressed by preferences.
type Classification int

const (
	ClassificationUnknown Classification = iota
	AlwaysSend
	AllowDisable
)

// Classify maps a category to its alert policy. ALWAYS_SEND categories cannot
// be suppressed by any user or tenant preference at any layer.
func Classify(c Category) Classification {
	switch c {
	case CategoryPasswordChanged,
		CategoryMFAEnabled,
		CategoryMFADisabled,
		CategoryNewLogin,
		CategoryTenantDeletion:
		return AlwaysSend
	case CategoryMFAEnablement,
		CategoryPhoneVerification,
		CategoryTrialExpiration,
		CategoryTrialExpired,
		CategoryWorkspaceInvite,
		CategorySystemAnnouncement,
		CategoryWorkflowUpdate,
		CategoryIntegrationFailure:
		return AllowDisable
	}
	return ClassificationUnknown
}

// IsAlwaysSend reports whether the category bypasses all preference checks.
func IsAlwaysSend(c Category) bool {
	return Classify(c) == AlwaysSend
}

// NotificationType is the coarse grouping shown in the notification inbox.
type NotificationType string

const (
	TypeSecurity    NotificationType = "security"
	TypeSystem      NotificationType = "system"
	TypeWorkflow    NotificationType = "workflow"
	TypeTeam        NotificationType = "team"
	TypeIntegration NotificationType = "integration"
)

// TypeOf maps a category to its notification type.
func TypeOf(c Category) NotificationType {
	switch c {
	case CategoryPasswordChanged, CategoryMFAEnabled, CategoryMFADisabled,
		CategoryNewLogin, CategoryMFAEnablement, CategoryPhoneVerification:
		return TypeSecurity
	case CategoryTrialExpiration, CategoryTrialExpired, CategoryTenantDeletion,
		CategorySystemAnnouncement:
		return TypeSystem
	case CategoryWorkflowUpdate:
		return TypeWorkflow
	case CategoryWorkspaceInvite:
		return TypeTeam
	case CategoryIntegrationFailure:
		return TypeIntegration
	}
	return TypeSystem
}

// Severity of a notification as rendered in the inbox.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeveritySuccess Severity = "success"
)

// Channel is a delivery channel controllable through preferences.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
	ChannelSound Channel = "sound"
)

// Campaign is a recurring reminder type.
type Campaign string

const (
	CampaignMFAEnablement     Campaign = "mfa_enablement"
	CampaignPhoneVerification Campaign = "phone_verification"
	CampaignTrialExpiration   Campaign = "trial_expiration"
	CampaignTenantDeletion    Campaign = "tenant_deletion"
)

// AllCampaigns lists every reminder campaign.
var AllCampaigns = []Campaign{
	CampaignMFAEnablement,
	CampaignPhoneVerification,
	CampaignTrialExpiration,
	CampaignTenantDeletion,
}

// Stage is the escalation level within a campaign.
type Stage string

const (
	StageNone  Stage = ""
	StageFirst Stage = "first"
	StageFinal Stage = "final"
)

// campaignCategories is the explicit mapping from campaign to notification
// category. Kept as a table rather than string concatenation so a mismatch is
// caught by the exhaustiveness test, not at delivery time.
var campaignCategories = map[Campaign]Category{
	CampaignMFAEnablement:     CategoryMFAEnablement,
	CampaignPhoneVerification: CategoryPhoneVerification,
	CampaignTrialExpiration:   CategoryTrialExpiration,
	CampaignTenantDeletion:    CategoryTenantDeletion,
}

// CampaignCategory returns the notification category for a campaign.
func CampaignCategory(c Campaign) (Category, bool) {
	cat, ok := campaignCategories[c]
	return cat, ok
}

// ParseCampaign validates a campaign name from an external payload.
func ParseCampaign(s string) (Campaign, bool) {
	c := Campaign(s)
	_, ok := campaignCategories[c]
	return c, ok
}
