// Package automation runs tenant automations: it matches contact events to
// automations, keeps a durable queue of step executions and works that queue.
package automation

import (
	"time"

	"github.com/sirupsen/logrus"

	"simpleautomate/models"
)

// Config tunes the engine. Zero values fall back to the defaults below.
type Config struct {
	BatchSize          int
	MaxAttempts        int
	RetryBaseDelay     time.Duration
	VisibilityTimeout  time.Duration
	DateTriggerDedup   bool
	TriggerConcurrency int
	Location           *time.Location
}

const (
	DefaultBatchSize          = 20
	DefaultMaxAttempts        = 3
	DefaultRetryBaseDelay     = time.Minute
	DefaultVisibilityTimeout  = 10 * time.Minute
	DefaultTriggerConcurrency = 8
	maxRetryDelay             = time.Hour
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if c.TriggerConcurrency <= 0 {
		c.TriggerConcurrency = DefaultTriggerConcurrency
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// EventKind describes a queue entry state change
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventRetried   EventKind = "retried"
)

// Event is published for every queue entry state change
type Event struct {
	Kind         EventKind `json:"kind"`
	UserID       uint      `json:"user_id"`
	AutomationID uint      `json:"automation_id"`
	LogID        uint      `json:"log_id"`
	StepID       uint      `json:"step_id"`
	ContactID    *uint     `json:"contact_id,omitempty"`
	Message      string    `json:"message,omitempty"`
	At           time.Time `json:"at"`
}

type Engine struct {
	deps   Deps
	cfg    Config
	now    func() time.Time
	logger *logrus.Entry
	hooks  []func(Event)
}

type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger *logrus.Entry) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEventHook registers a callback for queue events. Hooks run
// synchronously and must not block.
func WithEventHook(hook func(Event)) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, hook) }
}

func NewEngine(deps Deps, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: logrus.WithField("component", "automation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emit(kind EventKind, entry *models.AutomationLog, message string) {
	if len(e.hooks) == 0 {
		return
	}
	ev := Event{
		Kind:         kind,
		UserID:       entry.UserID,
		AutomationID: entry.AutomationID,
		LogID:        entry.ID,
		StepID:       entry.StepID,
		ContactID:    entry.ContactID,
		Message:      message,
		At:           e.now(),
	}
	for _, hook := range e.hooks {
		hook(ev)
	}
}

// retryDelay is RetryBaseDelay doubled for every prior failed attempt
func (e *Engine) retryDelay(attempt int) time.Duration {
	d := e.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
