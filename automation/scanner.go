package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"simpleautomate/models"
)

// DateWindow returns the day window a DATE automation targets: the start of
// today (in loc) shifted by offsetDays, plus one day.
func DateWindow(now time.Time, loc *time.Location, offsetDays int) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, offsetDays)
	return start, start.AddDate(0, 0, 1)
}

// ScanDateTriggers enqueues the first step of every active DATE automation
// for each of the tenant's contacts created inside the automation's window.
// It returns how many entries were enqueued.
func (e *Engine) ScanDateTriggers(ctx context.Context) (int, error) {
	automations, err := e.deps.Store.FindActiveByTrigger(ctx, models.TriggerDate)
	if err != nil {
		return 0, fmt.Errorf("load date automations: %w", err)
	}

	enqueued := 0
	var errs []error
	for i := range automations {
		automation := &automations[i]
		if len(automation.Steps) == 0 {
			continue
		}
		n, err := e.scanAutomation(ctx, automation)
		enqueued += n
		if err != nil {
			errs = append(errs, fmt.Errorf("automation %d: %w", automation.ID, err))
		}
	}
	return enqueued, errors.Join(errs...)
}

func (e *Engine) scanAutomation(ctx context.Context, automation *models.Automation) (int, error) {
	offset, _ := configInt(automation.TriggerConfig, "offsetDays")
	from, to := DateWindow(e.now(), e.cfg.Location, offset)

	contactIDs, err := e.deps.Contacts.ContactsCreatedBetween(ctx, automation.UserID, from, to)
	if err != nil {
		return 0, fmt.Errorf("load contacts: %w", err)
	}

	enqueued := 0
	for _, contactID := range contactIDs {
		if e.cfg.DateTriggerDedup {
			first, err := e.deps.Store.MarkScanned(ctx, automation.ID, contactID, from)
			if err != nil {
				return enqueued, fmt.Errorf("mark scanned: %w", err)
			}
			if !first {
				continue
			}
		}
		if err := e.enqueueFirst(ctx, automation, contactID); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	if enqueued > 0 {
		e.logger.WithFields(logrus.Fields{
			"automation_id": automation.ID,
			"window_start":  from,
			"enqueued":      enqueued,
		}).Info("Date automation scheduled")
	}
	return enqueued, nil
}
