package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TriggerType is the contact event class that starts an automation.
type TriggerType string

const (
	TriggerNewContact  TriggerType = "NEW_CONTACT"
	TriggerStageChange TriggerType = "STAGE_CHANGE"
	TriggerDate        TriggerType = "DATE"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerNewContact, TriggerStageChange, TriggerDate:
		return true
	}
	return false
}

// StepType is the kind of work an automation step performs.
type StepType string

const (
	StepSendEmail  StepType = "SEND_EMAIL"
	StepDelay      StepType = "DELAY"
	StepUpdateTags StepType = "UPDATE_TAGS"
	StepMoveStage  StepType = "MOVE_STAGE"
)

// Valid reports whether s is a known step type.
func (s StepType) Valid() bool {
	switch s {
	case StepSendEmail, StepDelay, StepUpdateTags, StepMoveStage:
		return true
	}
	return false
}

// LogStatus is the lifecycle state of a queue entry.
type LogStatus string

const (
	LogQueued     LogStatus = "QUEUED"
	LogProcessing LogStatus = "PROCESSING"
	LogCompleted  LogStatus = "COMPLETED"
	LogFailed     LogStatus = "FAILED"
)

// Automation is a tenant-defined, trigger-activated sequence of steps
type Automation struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name          string            `gorm:"not null" json:"name"`
	Active        bool              `gorm:"not null;index" json:"active"`
	TriggerType   TriggerType       `gorm:"size:32;not null;index" json:"trigger_type"`
	TriggerConfig datatypes.JSONMap `json:"trigger_config"`

	// Relations
	Steps []AutomationStep `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE" json:"steps"`
	Logs  []AutomationLog  `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`
}

// AutomationStep is one unit of work. Position is the only source of
// ordering; there is no successor pointer.
type AutomationStep struct {
	gorm.Model
	AutomationID uint `gorm:"not null;index" json:"automation_id"`

	Type     StepType          `gorm:"size:32;not null" json:"type"`
	Position int               `gorm:"not null" json:"position"`
	Config   datatypes.JSONMap `json:"config"`
}

// AutomationLog is a queue entry: one attempted (or pending) execution of one
// step for one contact.
type AutomationLog struct {
	gorm.Model
	AutomationID uint  `gorm:"not null;index" json:"automation_id"`
	UserID       uint  `gorm:"not null;index" json:"user_id"`
	ContactID    *uint `gorm:"index" json:"contact_id"`
	StepID       uint  `gorm:"not null;index" json:"step_id"`

	Status       LogStatus  `gorm:"size:16;not null;index:idx_automation_log_due,priority:1" json:"status"`
	ScheduledFor *time.Time `gorm:"index:idx_automation_log_due,priority:2" json:"scheduled_for"`
	ProcessedAt  *time.Time `json:"processed_at"`
	Message      string     `gorm:"type:text" json:"message"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`

	// Claim bookkeeping for the queue processor
	ClaimedAt  *time.Time `json:"-"`
	ClaimToken string     `gorm:"size:36" json:"-"`

	// Ordered step ids of the automation at the time the chain was started
	StepPlan datatypes.JSONSlice[uint] `json:"-"`
}

// AutomationScan records that the date scanner already enqueued a contact for
// an automation's window. Only used when date-trigger dedup is enabled.
type AutomationScan struct {
	ID           uint      `gorm:"primaryKey"`
	AutomationID uint      `gorm:"not null;uniqueIndex:idx_automation_scan"`
	ContactID    uint      `gorm:"not null;uniqueIndex:idx_automation_scan"`
	WindowStart  time.Time `gorm:"not null;uniqueIndex:idx_automation_scan"`
	CreatedAt    time.Time
}
