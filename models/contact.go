package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single person in a tenant's CRM
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name  string  `gorm:"not null" json:"name"`
	Email *string `gorm:"index" json:"email"`
	Phone *string `json:"phone"`

	// Relations
	Tags   []ContactTag   `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
	Stages []ContactStage `gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`
	Tasks  []Task         `gorm:"foreignKey:ContactID" json:"tasks,omitempty"`
	Notes  []Note         `gorm:"foreignKey:ContactID" json:"notes,omitempty"`
}

// TagNames returns the contact's tags as plain strings.
func (c *Contact) TagNames() []string {
	names := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		names = append(names, t.Tag)
	}
	return names
}

// CurrentStage returns the most recent stage assignment, or nil.
func (c *Contact) CurrentStage() *ContactStage {
	var current *ContactStage
	for i := range c.Stages {
		if current == nil || c.Stages[i].AssignedAt.After(current.AssignedAt) {
			current = &c.Stages[i]
		}
	}
	return current
}

// ContactTag represents one tag on a contact (normalized, unique per contact)
type ContactTag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ContactID uint      `gorm:"not null;uniqueIndex:idx_contact_tag" json:"contact_id"`
	Tag       string    `gorm:"not null;uniqueIndex:idx_contact_tag;index" json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactStage is one row of a contact's append-only pipeline history.
// The current stage is whichever row has the latest AssignedAt.
type ContactStage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ContactID  uint      `gorm:"not null;index" json:"contact_id"`
	StageID    uint      `gorm:"not null;index" json:"stage_id"`
	AssignedAt time.Time `gorm:"not null;index" json:"assigned_at"`

	Stage *Stage `json:"stage,omitempty"`
}

// Pipeline is a kanban board of ordered stages
type Pipeline struct {
	gorm.Model
	UserID uint   `gorm:"not null;index" json:"user_id"`
	Name   string `gorm:"not null" json:"name"`

	Stages []Stage `gorm:"foreignKey:PipelineID;constraint:OnDelete:CASCADE" json:"stages,omitempty"`
}

// Stage is a column of a pipeline
type Stage struct {
	gorm.Model
	PipelineID uint   `gorm:"not null;index" json:"pipeline_id"`
	Name       string `gorm:"not null" json:"name"`
	Position   int    `gorm:"not null" json:"position"`
}

// Task is a to-do item, optionally attached to a contact
type Task struct {
	gorm.Model
	UserID    uint  `gorm:"not null;index" json:"user_id"`
	ContactID *uint `gorm:"index" json:"contact_id"`

	Title            string     `gorm:"not null" json:"title"`
	DueDate          *time.Time `gorm:"index" json:"due_date"`
	Completed        bool       `gorm:"not null;index" json:"completed"`
	NotificationSent bool       `gorm:"not null" json:"notification_sent"`

	Contact *Contact `json:"contact,omitempty"`
	User    *User    `json:"-"`
}

// Note is a free-text note on a contact. Every write appends a NoteRevision.
type Note struct {
	gorm.Model
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Content   string `gorm:"type:text;not null" json:"content"`
}

// NoteRevision is an immutable snapshot of a note's content
type NoteRevision struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	NoteID    uint      `gorm:"not null;index" json:"note_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
