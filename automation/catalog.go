package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"simpleautomate/models"
	"simpleautomate/utils"
)

const defaultEmailSubject = "SimpleAutomate Automation"

// Execute performs one step for one queue entry and returns when the
// successor entry should become due.
func (e *Engine) Execute(ctx context.Context, entry *models.AutomationLog, step *models.AutomationStep) (time.Time, error) {
	cfg := map[string]interface{}(step.Config)

	switch step.Type {
	case models.StepSendEmail:
		if err := e.sendEmail(ctx, entry, cfg); err != nil {
			return time.Time{}, err
		}
		return e.now(), nil
	case models.StepDelay:
		return DelayUntil(e.now(), cfg), nil
	case models.StepUpdateTags:
		if err := e.updateTags(ctx, entry, cfg); err != nil {
			return time.Time{}, err
		}
		return e.now(), nil
	case models.StepMoveStage:
		if err := e.moveStage(ctx, entry, cfg); err != nil {
			return time.Time{}, err
		}
		return e.now(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported automation step %s", step.Type)
	}
}

func (e *Engine) sendEmail(ctx context.Context, entry *models.AutomationLog, cfg map[string]interface{}) error {
	if entry.ContactID == nil {
		return errors.New("Missing contact for email step")
	}
	contact, err := e.loadContact(ctx, entry)
	if err != nil {
		return err
	}
	if contact.Email == nil || strings.TrimSpace(*contact.Email) == "" {
		return errors.New("Contact has no email address")
	}

	subject, ok := configString(cfg, "subject")
	if !ok {
		subject = defaultEmailSubject
	}
	body, _ := configString(cfg, "body")

	if templateID, ok := configID(cfg, "templateId"); ok {
		tmpl, err := e.deps.Templates.GetTemplate(ctx, entry.UserID, templateID)
		switch {
		case err == nil:
			subject, body = tmpl.Subject, tmpl.Body
		case errors.Is(err, ErrNotFound):
			// fall back to the step's own subject and body
		default:
			return Transient(fmt.Errorf("load template: %w", err))
		}
	}

	replyTo, err := e.deps.Users.GetUserEmail(ctx, entry.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Transient(fmt.Errorf("load tenant: %w", err))
	}

	merge := utils.MergeContact{Name: contact.Name, Email: *contact.Email}
	if contact.Phone != nil {
		merge.Phone = *contact.Phone
	}
	subject = utils.RenderMergeFields(subject, merge)
	body = utils.RenderMergeFields(body, merge)

	return e.deps.Mailer.Send(ctx, utils.Email{
		To:      strings.TrimSpace(*contact.Email),
		ReplyTo: replyTo,
		Subject: subject,
		HTML:    utils.RenderEmailLayout(subject, body),
	})
}

func (e *Engine) updateTags(ctx context.Context, entry *models.AutomationLog, cfg map[string]interface{}) error {
	if entry.ContactID == nil {
		return errors.New("Missing contact for tag step")
	}
	contact, err := e.loadContact(ctx, entry)
	if err != nil {
		return err
	}

	action, _ := configString(cfg, "action")
	next := ApplyTagAction(contact.TagNames(), action, configStrings(cfg, "tags"))
	if err := e.deps.Contacts.SetTags(ctx, contact.ID, next); err != nil {
		return Transient(fmt.Errorf("update tags: %w", err))
	}
	return nil
}

func (e *Engine) moveStage(ctx context.Context, entry *models.AutomationLog, cfg map[string]interface{}) error {
	if entry.ContactID == nil {
		return errors.New("Missing contact for stage move step")
	}
	stageID, ok := configID(cfg, "stageId")
	if !ok {
		return errors.New("stageId missing")
	}
	owned, err := e.deps.Contacts.StageOwned(ctx, entry.UserID, stageID)
	if err != nil {
		return Transient(fmt.Errorf("check stage: %w", err))
	}
	if !owned {
		return errors.New("Stage not found")
	}
	if err := e.deps.Contacts.AssignStage(ctx, *entry.ContactID, stageID, e.now()); err != nil {
		return fmt.Errorf("assign stage: %w", err)
	}
	return nil
}

// MoveStageTargets returns the stage ids MOVE_STAGE steps point at.
func MoveStageTargets(steps []models.AutomationStep) []uint {
	var ids []uint
	for _, s := range steps {
		if s.Type != models.StepMoveStage {
			continue
		}
		if id, ok := configID(s.Config, "stageId"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *Engine) loadContact(ctx context.Context, entry *models.AutomationLog) (*models.Contact, error) {
	contact, err := e.deps.Contacts.GetContact(ctx, entry.UserID, *entry.ContactID)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.New("Contact not found")
	}
	if err != nil {
		return nil, Transient(fmt.Errorf("load contact: %w", err))
	}
	return contact, nil
}

// maxDelayDays caps a DELAY step at ten years.
const maxDelayDays = 3650

// DelayUntil adds amount x unit (minute, hour or day) to now. Missing values
// default to one day; delays longer than maxDelayDays are cut to it.
func DelayUntil(now time.Time, cfg map[string]interface{}) time.Time {
	amount, ok := configInt(cfg, "amount")
	if !ok {
		amount = 1
	}
	if amount < 0 {
		amount = 0
	}

	unit, _ := configString(cfg, "unit")
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s") {
	case "minute":
		return now.Add(time.Duration(min(amount, maxDelayDays*24*60)) * time.Minute)
	case "hour":
		return now.Add(time.Duration(min(amount, maxDelayDays*24)) * time.Hour)
	default:
		return now.AddDate(0, 0, min(amount, maxDelayDays))
	}
}

// ApplyTagAction returns the contact's new tag set. "remove" is set
// difference; anything else is union. Existing order is kept and new tags
// are appended.
func ApplyTagAction(current []string, action string, tags []string) []string {
	change := make(map[string]struct{}, len(tags))
	var ordered []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := change[t]; !dup {
			change[t] = struct{}{}
			ordered = append(ordered, t)
		}
	}

	seen := make(map[string]struct{}, len(current)+len(ordered))
	out := make([]string, 0, len(current)+len(ordered))
	remove := strings.EqualFold(strings.TrimSpace(action), "remove")
	for _, t := range current {
		if _, dup := seen[t]; dup {
			continue
		}
		if _, hit := change[t]; hit && remove {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if remove {
		return out
	}
	for _, t := range ordered {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
