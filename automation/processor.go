package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"simpleautomate/models"
)

// ProcessResult counts what one ProcessQueue pass did
type ProcessResult struct {
	Claimed   int   `json:"claimed"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Retried   int   `json:"retried"`
	Released  int64 `json:"released"`
}

// ProcessQueue claims a batch of due entries and works them one at a time.
// Step failures are recorded on their entry; the returned error only reports
// store failures.
func (e *Engine) ProcessQueue(ctx context.Context) (ProcessResult, error) {
	var res ProcessResult
	now := e.now()

	released, err := e.deps.Store.ReleaseStale(ctx, now.Add(-e.cfg.VisibilityTimeout))
	if err != nil {
		return res, fmt.Errorf("release stale claims: %w", err)
	}
	res.Released = released
	if released > 0 {
		e.logger.WithField("count", released).Warn("Released stale automation claims")
	}

	token := uuid.NewString()
	entries, err := e.deps.Store.ClaimDue(ctx, now, e.cfg.BatchSize, token)
	if err != nil {
		return res, fmt.Errorf("claim due entries: %w", err)
	}
	res.Claimed = len(entries)

	var errs []error
	for i := range entries {
		if err := ctx.Err(); err != nil {
			// unprocessed claims are picked up again after the visibility timeout
			errs = append(errs, err)
			break
		}
		if err := e.processEntry(ctx, &entries[i], &res); err != nil {
			errs = append(errs, fmt.Errorf("log %d: %w", entries[i].ID, err))
		}
	}
	return res, errors.Join(errs...)
}

func (e *Engine) processEntry(ctx context.Context, entry *models.AutomationLog, res *ProcessResult) error {
	log := e.logger.WithFields(logrus.Fields{
		"log_id":        entry.ID,
		"automation_id": entry.AutomationID,
		"step_id":       entry.StepID,
	})

	step, err := e.deps.Store.GetStep(ctx, entry.AutomationID, entry.StepID)
	if errors.Is(err, ErrNotFound) {
		res.Failed++
		log.Warn(missingStepMessage)
		return e.fail(ctx, entry, missingStepMessage)
	}
	if err != nil {
		return e.handleFailure(ctx, entry, Transient(fmt.Errorf("load step: %w", err)), res, log)
	}

	nextRun, err := e.Execute(ctx, entry, step)

	// once the step has run its outcome is recorded even if ctx is
	// cancelled, or the entry is released and the step runs twice
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return e.handleFailure(ctx, entry, err, res, log)
	}

	if err := e.deps.Store.Complete(ctx, entry.ID, e.now()); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	res.Completed++
	e.emit(EventCompleted, entry, "")
	log.Debug("Automation step completed")

	return e.enqueueSuccessor(ctx, entry, nextRun)
}

func (e *Engine) handleFailure(ctx context.Context, entry *models.AutomationLog, stepErr error, res *ProcessResult, log *logrus.Entry) error {
	attempts := entry.Attempts + 1
	message := stepErr.Error()

	if IsTransient(stepErr) && attempts < e.cfg.MaxAttempts {
		retryAt := e.now().Add(e.retryDelay(attempts))
		if err := e.deps.Store.Retry(ctx, entry.ID, retryAt, attempts, message); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		res.Retried++
		log.WithError(stepErr).WithField("retry_at", retryAt).Warn("Automation step failed, retrying")
		e.emit(EventRetried, entry, message)
		return nil
	}

	res.Failed++
	log.WithError(stepErr).Warn("Automation step failed")
	return e.fail(ctx, entry, message)
}

func (e *Engine) fail(ctx context.Context, entry *models.AutomationLog, message string) error {
	if err := e.deps.Store.Fail(ctx, entry.ID, message, e.now()); err != nil {
		return fmt.Errorf("fail: %w", err)
	}
	e.emit(EventFailed, entry, message)
	return nil
}

// enqueueSuccessor queues the step after entry's step, due at nextRun. The
// chain ends at the last step or when the entry has no contact.
func (e *Engine) enqueueSuccessor(ctx context.Context, entry *models.AutomationLog, nextRun time.Time) error {
	if entry.ContactID == nil {
		return nil
	}

	plan := []uint(entry.StepPlan)
	if len(plan) == 0 {
		steps, err := e.deps.Store.ListSteps(ctx, entry.AutomationID)
		if err != nil {
			return fmt.Errorf("list steps: %w", err)
		}
		for _, s := range steps {
			plan = append(plan, s.ID)
		}
	}

	nextStepID, ok := nextInPlan(plan, entry.StepID)
	if !ok {
		return nil
	}

	contactID := *entry.ContactID
	scheduled := nextRun
	next := &models.AutomationLog{
		AutomationID: entry.AutomationID,
		UserID:       entry.UserID,
		ContactID:    &contactID,
		StepID:       nextStepID,
		Status:       models.LogQueued,
		ScheduledFor: &scheduled,
		StepPlan:     entry.StepPlan,
	}
	if err := e.deps.Store.Enqueue(ctx, next); err != nil {
		return fmt.Errorf("enqueue successor: %w", err)
	}
	e.emit(EventQueued, next, "")
	return nil
}

func nextInPlan(plan []uint, current uint) (uint, bool) {
	for i, id := range plan {
		if id == current {
			if i+1 < len(plan) {
				return plan[i+1], true
			}
			return 0, false
		}
	}
	return 0, false
}
