package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignDraft     = "DRAFT"
	CampaignScheduled = "SCHEDULED"
	CampaignSending   = "SENDING"
	CampaignSent      = "SENT"
)

// Recipient statuses
const (
	RecipientPending = "PENDING"
	RecipientSent    = "SENT"
	RecipientBounced = "BOUNCED"
)

// EmailCampaign represents a one-off email blast to a set of contacts
type EmailCampaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Campaign details
	Name    string `gorm:"not null" json:"name"`
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	// Scheduling
	Status       string     `gorm:"size:16;not null;default:'DRAFT';index" json:"status"`
	ScheduledFor *time.Time `gorm:"index" json:"scheduled_for"`

	// Relations
	Recipients []EmailCampaignRecipient `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"recipients,omitempty"`
}

// EmailCampaignRecipient tracks delivery of a campaign to one contact
type EmailCampaignRecipient struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`

	Status string     `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	SentAt *time.Time `json:"sent_at"`

	// TrackingToken identifies the recipient in the open-tracking pixel URL
	TrackingToken string     `gorm:"size:36;index" json:"-"`
	OpenedAt      *time.Time `json:"opened_at"`
	ClickedAt     *time.Time `json:"clicked_at"`
}

// EmailTemplate represents a reusable email for campaigns and automations
type EmailTemplate struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name    string `gorm:"not null" json:"name"`
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`
}
