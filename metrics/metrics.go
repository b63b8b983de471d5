package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"simpleautomate/automation"
)

const prefix = "simpleautomate"

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Automation queue metrics
	QueueEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_automation_queue_events_total",
			Help: "Automation queue entry state changes by kind",
		},
		[]string{"kind"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_sweep_duration_seconds",
			Help:    "Duration of sweep passes in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	SweepItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_sweep_items_total",
			Help: "Work items handled by sweeps",
		},
		[]string{"item"},
	)

	CampaignRecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_campaign_recipients_total",
			Help: "Campaign recipients by delivery outcome",
		},
		[]string{"status"},
	)
)

// RecordQueueEvent is an automation.Engine event hook
func RecordQueueEvent(ev automation.Event) {
	QueueEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
}

// ObserveSweep records how long a sweep pass took and whether it failed
func ObserveSweep(d time.Duration, failed, skipped bool) {
	outcome := "ok"
	switch {
	case skipped:
		outcome = "skipped"
	case failed:
		outcome = "error"
	}
	SweepDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func AddSweepItems(item string, n int) {
	if n > 0 {
		SweepItemsTotal.WithLabelValues(item).Add(float64(n))
	}
}

func RecordCampaignRecipient(status string) {
	CampaignRecipientsTotal.WithLabelValues(status).Inc()
}

// Middleware adds prometheus metrics to track HTTP requests
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// route pattern keeps label cardinality bounded
		path := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}
