package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"simpleautomate/automation"
	"simpleautomate/metrics"
	"simpleautomate/utils"
)

const (
	sweepLockKey        = "simpleautomate:sweep"
	DefaultSweepLockTTL = 5 * time.Minute
)

// SweepReport summarizes one sweep pass
type SweepReport struct {
	Skipped             bool                     `json:"skipped"`
	Queue               automation.ProcessResult `json:"queue"`
	CampaignsDispatched int                      `json:"campaigns_dispatched"`
	DateEnqueued        int                      `json:"date_enqueued"`
	RemindersSent       int                      `json:"reminders_sent"`
	Duration            time.Duration            `json:"duration"`
}

// QueueRunner is the part of the automation engine a sweep drives
type QueueRunner interface {
	ProcessQueue(ctx context.Context) (automation.ProcessResult, error)
	ScanDateTriggers(ctx context.Context) (int, error)
}

// Sweeper runs one pass of every periodic job
type Sweeper struct {
	Engine    QueueRunner
	Campaigns *CampaignDispatcher
	Reminders *TaskReminder
	// Locker is optional; without it overlapping sweeps are not excluded
	Locker  Locker
	LockTTL time.Duration
	Logger  *logrus.Entry
}

func NewSweeper(engine QueueRunner, campaigns *CampaignDispatcher, reminders *TaskReminder, locker Locker) *Sweeper {
	return &Sweeper{
		Engine:    engine,
		Campaigns: campaigns,
		Reminders: reminders,
		Locker:    locker,
		LockTTL:   DefaultSweepLockTTL,
		Logger:    utils.Component("sweep"),
	}
}

// Run processes the automation queue, dispatches due campaigns, scans date
// triggers and sends task reminders. The four jobs run concurrently and a
// failing job does not stop the others; their errors are joined.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport

	if s.Locker != nil {
		release, ok, err := s.Locker.Acquire(ctx, sweepLockKey, s.LockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			report.Skipped = true
			s.Logger.Info("Sweep already running elsewhere, skipping")
			metrics.ObserveSweep(time.Since(start), false, true)
			return report, nil
		}
		defer release()
	}

	var queueErr, campaignErr, dateErr, reminderErr error
	g := new(errgroup.Group)
	g.Go(func() error {
		report.Queue, queueErr = s.Engine.ProcessQueue(ctx)
		return nil
	})
	g.Go(func() error {
		if s.Campaigns != nil {
			report.CampaignsDispatched, campaignErr = s.Campaigns.ProcessScheduled(ctx)
		}
		return nil
	})
	g.Go(func() error {
		report.DateEnqueued, dateErr = s.Engine.ScanDateTriggers(ctx)
		return nil
	})
	g.Go(func() error {
		if s.Reminders != nil {
			report.RemindersSent, reminderErr = s.Reminders.SendDueReminders(ctx)
		}
		return nil
	})
	_ = g.Wait()

	err := errors.Join(
		wrapJob("queue", queueErr),
		wrapJob("campaigns", campaignErr),
		wrapJob("date triggers", dateErr),
		wrapJob("task reminders", reminderErr),
	)
	report.Duration = time.Since(start)

	metrics.ObserveSweep(report.Duration, err != nil, false)
	metrics.AddSweepItems("queue_claimed", report.Queue.Claimed)
	metrics.AddSweepItems("campaigns", report.CampaignsDispatched)
	metrics.AddSweepItems("date_enqueued", report.DateEnqueued)
	metrics.AddSweepItems("reminders", report.RemindersSent)

	log := s.Logger.WithFields(logrus.Fields{
		"claimed":   report.Queue.Claimed,
		"completed": report.Queue.Completed,
		"failed":    report.Queue.Failed,
		"retried":   report.Queue.Retried,
		"campaigns": report.CampaignsDispatched,
		"date":      report.DateEnqueued,
		"reminders": report.RemindersSent,
		"duration":  utils.FormatDuration(report.Duration),
	})
	if err != nil {
		log.WithError(err).Error("Sweep finished with errors")
	} else {
		log.Info("Sweep finished")
	}
	return report, err
}

func wrapJob(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
