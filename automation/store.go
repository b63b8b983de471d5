package automation

import (
	"context"
	"time"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// Store persists automations and their queue entries.
type Store interface {
	// FindActiveAutomations returns a tenant's active automations of one
	// trigger type with steps ordered by position.
	FindActiveAutomations(ctx context.Context, userID uint, trigger models.TriggerType) ([]models.Automation, error)
	// FindActiveByTrigger is FindActiveAutomations across all tenants.
	FindActiveByTrigger(ctx context.Context, trigger models.TriggerType) ([]models.Automation, error)
	ListSteps(ctx context.Context, automationID uint) ([]models.AutomationStep, error)
	// GetStep returns the step only when it belongs to the automation.
	GetStep(ctx context.Context, automationID, stepID uint) (*models.AutomationStep, error)

	Enqueue(ctx context.Context, entry *models.AutomationLog) error
	// ClaimDue moves up to limit due QUEUED entries to PROCESSING, oldest
	// first, and returns only the entries this call won.
	ClaimDue(ctx context.Context, now time.Time, limit int, token string) ([]models.AutomationLog, error)
	Complete(ctx context.Context, id uint, processedAt time.Time) error
	Fail(ctx context.Context, id uint, message string, at time.Time) error
	Retry(ctx context.Context, id uint, scheduledFor time.Time, attempts int, message string) error
	// ReleaseStale returns PROCESSING entries claimed before the cutoff to
	// QUEUED.
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	// MarkScanned records (automation, contact, window) and reports whether
	// it was recorded for the first time.
	MarkScanned(ctx context.Context, automationID, contactID uint, windowStart time.Time) (bool, error)
}

// ContactStore reads and mutates the contacts automation steps act on.
type ContactStore interface {
	GetContact(ctx context.Context, userID, contactID uint) (*models.Contact, error)
	SetTags(ctx context.Context, contactID uint, tags []string) error
	AssignStage(ctx context.Context, contactID, stageID uint, at time.Time) error
	// StageOwned reports whether the stage sits in one of the tenant's
	// pipelines.
	StageOwned(ctx context.Context, userID, stageID uint) (bool, error)
	ContactsCreatedBetween(ctx context.Context, userID uint, from, to time.Time) ([]uint, error)
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, userID, templateID uint) (*models.EmailTemplate, error)
}

type UserStore interface {
	GetUserEmail(ctx context.Context, userID uint) (string, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store     Store
	Contacts  ContactStore
	Templates TemplateStore
	Users     UserStore
	Mailer    utils.Mailer
}
