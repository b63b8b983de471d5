package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"simpleautomate/models"
)

// TriggerEvent is a contact event that may start automations
type TriggerEvent struct {
	UserID    uint
	Type      models.TriggerType
	ContactID uint
	// StageID is the stage entered, for STAGE_CHANGE events
	StageID uint
}

// Trigger enqueues the first step of every matching active automation of the
// tenant. A failing automation does not stop the others; all failures are
// returned joined.
func (e *Engine) Trigger(ctx context.Context, ev TriggerEvent) error {
	automations, err := e.deps.Store.FindActiveAutomations(ctx, ev.UserID, ev.Type)
	if err != nil {
		return fmt.Errorf("load automations: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.TriggerConcurrency)

	for i := range automations {
		automation := &automations[i]
		if len(automation.Steps) == 0 || !matchesStage(automation, ev) {
			continue
		}
		g.Go(func() error {
			if err := e.enqueueFirst(ctx, automation, ev.ContactID); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("automation %d: %w", automation.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func matchesStage(automation *models.Automation, ev TriggerEvent) bool {
	if ev.Type != models.TriggerStageChange {
		return true
	}
	stageID, ok := configID(automation.TriggerConfig, "stageId")
	if !ok {
		return true
	}
	return stageID == ev.StageID
}

// enqueueFirst queues the automation's first step for a contact, due now,
// with the automation's current step order as the chain's plan.
func (e *Engine) enqueueFirst(ctx context.Context, automation *models.Automation, contactID uint) error {
	plan := make([]uint, 0, len(automation.Steps))
	for _, s := range automation.Steps {
		plan = append(plan, s.ID)
	}

	now := e.now()
	contact := contactID
	entry := &models.AutomationLog{
		AutomationID: automation.ID,
		UserID:       automation.UserID,
		ContactID:    &contact,
		StepID:       automation.Steps[0].ID,
		Status:       models.LogQueued,
		ScheduledFor: &now,
		StepPlan:     plan,
	}
	if err := e.deps.Store.Enqueue(ctx, entry); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"automation_id": automation.ID,
		"contact_id":    contactID,
		"log_id":        entry.ID,
	}).Debug("Automation queued")
	e.emit(EventQueued, entry, "")
	return nil
}
