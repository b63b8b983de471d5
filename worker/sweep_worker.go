package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"simpleautomate/services"
	"simpleautomate/utils"
)

// Sweeper is the periodic job runner the worker drives
type Sweeper interface {
	Run(ctx context.Context) (services.SweepReport, error)
}

// SweepWorker runs the sweep on a fixed interval inside the server process,
// for deployments without an external cron hitting /api/cron/run
type SweepWorker struct {
	Sweeper      Sweeper
	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *logrus.Entry
}

func NewSweepWorker(sweeper Sweeper, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		Sweeper:      sweeper,
		Interval:     interval,
		InitialDelay: 10 * time.Second,
		Logger:       utils.Component("sweep_worker"),
	}
}

// Start blocks until ctx is cancelled. A non-positive interval disables the
// worker.
func (sw *SweepWorker) Start(ctx context.Context) {
	if sw.Interval <= 0 {
		sw.Logger.Info("Sweep worker disabled")
		return
	}

	// let the server finish starting up
	select {
	case <-ctx.Done():
		return
	case <-time.After(sw.InitialDelay):
	}

	sw.Logger.WithField("interval", sw.Interval.String()).Info("Sweep worker started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		sw.runOnce(ctx)
		select {
		case <-ctx.Done():
			sw.Logger.Info("Sweep worker shutting down...")
			return
		case <-ticker.C:
		}
	}
}

func (sw *SweepWorker) runOnce(ctx context.Context) {
	report, err := sw.Sweeper.Run(ctx)
	if err != nil {
		utils.LogError("sweep", err, map[string]interface{}{"trigger": "worker"})
		return
	}
	if report.Skipped {
		sw.Logger.Debug("Sweep skipped, another instance holds the lock")
		return
	}
	sw.Logger.WithFields(logrus.Fields{
		"completed": report.Queue.Completed,
		"failed":    report.Queue.Failed,
		"campaigns": report.CampaignsDispatched,
		"reminders": report.RemindersSent,
		"duration":  report.Duration.String(),
	}).Debug("Sweep finished")
}
