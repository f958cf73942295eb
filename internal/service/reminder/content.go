package reminder

import (
	"fmt"

	"notifyhub/internal/policy"
)

// Content is the rendered notification body for one delivery job. Email HTML
// is kept deliberately plain; a template provider can replace composeHTML
// without touching the pipeline.
type Content struct {
	Title        string
	Message      string
	Severity     policy.Severity
	ActionRoute  string
	ActionLabel  string
	EmailSubject string
	EmailHTML    string
}

// BuildContent composes the user-facing copy for a campaign stage.
func BuildContent(campaign policy.Campaign, stage policy.Stage, daysRemaining int) Content {
	dayWord := "days"
	if daysRemaining == 1 {
		dayWord = "day"
	}
	deadlinePhrase := fmt.Sprintf("%d %s", daysRemaining, dayWord)
	if daysRemaining <= 0 {
		deadlinePhrase = "today"
	}

	var c Content
	switch campaign {
	case policy.CampaignMFAEnablement:
		c = Content{
			Title:       "Enable two-factor authentication",
			Message:     fmt.Sprintf("Your workspace requires two-factor authentication. You have %s left to enable it.", deadlinePhrase),
			Severity:    policy.SeverityWarning,
			ActionRoute: "/settings/security/mfa",
			ActionLabel: "Enable MFA",
		}
	case policy.CampaignPhoneVerification:
		c = Content{
			Title:       "Verify your phone number",
			Message:     fmt.Sprintf("Your workspace requires a verified phone number. You have %s left to verify it.", deadlinePhrase),
			Severity:    policy.SeverityWarning,
			ActionRoute: "/settings/security/phone",
			ActionLabel: "Verify phone",
		}
	case policy.CampaignTrialExpiration:
		c = Content{
			Title:       "Your trial is ending soon",
			Message:     fmt.Sprintf("Your trial ends in %s. Upgrade to keep your team's workflows running.", deadlinePhrase),
			Severity:    policy.SeverityWarning,
			ActionRoute: "/settings/billing",
			ActionLabel: "Upgrade",
		}
	case policy.CampaignTenantDeletion:
		c = Content{
			Title:       "Workspace scheduled for deletion",
			Message:     fmt.Sprintf("This workspace will be permanently deleted in %s. Cancel the deletion to keep your data.", deadlinePhrase),
			Severity:    policy.SeverityDanger,
			ActionRoute: "/settings/workspace",
			ActionLabel: "Cancel deletion",
		}
	}

	if stage == policy.StageFinal {
		c.Title = "Final reminder: " + lowerFirst(c.Title)
		c.Severity = policy.SeverityDanger
	}

	c.EmailSubject = c.Title
	c.EmailHTML = fmt.Sprintf("<p>%s</p>", c.Message)
	return c
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
