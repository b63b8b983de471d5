package automation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"simpleautomate/models"
	"simpleautomate/utils"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock { return &testClock{now: now} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scanKey struct {
	automationID, contactID uint
	window                  time.Time
}

// memStore is an in-memory Store, ContactStore, TemplateStore and UserStore
type memStore struct {
	mu     sync.Mutex
	nextID uint

	automations map[uint]*models.Automation
	logs        map[uint]*models.AutomationLog
	scans       map[scanKey]bool
	contacts    map[uint]*models.Contact
	templates   map[uint]*models.EmailTemplate
	users       map[uint]string
	stages      map[uint]uint // stage id to owning tenant

	enqueueErr map[uint]error // by automation id
	findErr    error
}

func newMemStore() *memStore {
	return &memStore{
		automations: map[uint]*models.Automation{},
		logs:        map[uint]*models.AutomationLog{},
		scans:       map[scanKey]bool{},
		contacts:    map[uint]*models.Contact{},
		templates:   map[uint]*models.EmailTemplate{},
		users:       map[uint]string{},
		stages:      map[uint]uint{},
		enqueueErr:  map[uint]error{},
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) addAutomation(userID uint, trigger models.TriggerType, cfg map[string]interface{}, steps ...models.AutomationStep) *models.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Automation{UserID: userID, Name: "auto", Active: true, TriggerType: trigger, TriggerConfig: cfg}
	a.ID = s.id()
	for i := range steps {
		steps[i].ID = s.id()
		steps[i].AutomationID = a.ID
		steps[i].Position = i
	}
	a.Steps = steps
	s.automations[a.ID] = a
	return a
}

func (s *memStore) addContact(userID uint, name, email string, createdAt time.Time) *models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Contact{UserID: userID, Name: name}
	if email != "" {
		c.Email = &email
	}
	c.ID = s.id()
	c.CreatedAt = createdAt
	s.contacts[c.ID] = c
	return c
}

func (s *memStore) addTemplate(userID uint, subject, body string) *models.EmailTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.EmailTemplate{UserID: userID, Name: "tmpl", Subject: subject, Body: body}
	t.ID = s.id()
	s.templates[t.ID] = t
	return t
}

func (s *memStore) addStage(userID, stageID uint) {
	s.mu.Lock()
	s.stages[stageID] = userID
	s.mu.Unlock()
}

func (s *memStore) deleteStep(stepID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.automations {
		kept := a.Steps[:0]
		for _, st := range a.Steps {
			if st.ID != stepID {
				kept = append(kept, st)
			}
		}
		a.Steps = kept
	}
}

// allLogs returns copies ordered by id
func (s *memStore) allLogs() []models.AutomationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AutomationLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) logsWithStatus(status models.LogStatus) []models.AutomationLog {
	var out []models.AutomationLog
	for _, l := range s.allLogs() {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) contact(id uint) models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.contacts[id]
}

func (s *memStore) matching(match func(*models.Automation) bool) []models.Automation {
	var out []models.Automation
	ids := make([]uint, 0, len(s.automations))
	for id := range s.automations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a := s.automations[id]
		if !a.Active || !match(a) {
			continue
		}
		cp := *a
		cp.Steps = append([]models.AutomationStep(nil), a.Steps...)
		sort.Slice(cp.Steps, func(i, j int) bool { return cp.Steps[i].Position < cp.Steps[j].Position })
		out = append(out, cp)
	}
	return out
}

func (s *memStore) FindActiveAutomations(_ context.Context, userID uint, trigger models.TriggerType) ([]models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.matching(func(a *models.Automation) bool {
		return a.UserID == userID && a.TriggerType == trigger
	}), nil
}

func (s *memStore) FindActiveByTrigger(_ context.Context, trigger models.TriggerType) ([]models.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.matching(func(a *models.Automation) bool { return a.TriggerType == trigger }), nil
}

func (s *memStore) ListSteps(_ context.Context, automationID uint) ([]models.AutomationStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.automations[automationID]
	if !ok {
		return nil, nil
	}
	steps := append([]models.AutomationStep(nil), a.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Position < steps[j].Position })
	return steps, nil
}

func (s *memStore) GetStep(_ context.Context, automationID, stepID uint) (*models.AutomationStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.automations[automationID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, st := range a.Steps {
		if st.ID == stepID {
			cp := st
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) Enqueue(ctx context.Context, entry *models.AutomationLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enqueueErr[entry.AutomationID]; err != nil {
		return err
	}
	entry.ID = s.id()
	cp := *entry
	s.logs[entry.ID] = &cp
	return nil
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time, limit int, token string) ([]models.AutomationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []models.AutomationLog
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		l := s.logs[id]
		if l.Status != models.LogQueued {
			continue
		}
		if l.ScheduledFor != nil && l.ScheduledFor.After(now) {
			continue
		}
		claimed := now
		l.Status = models.LogProcessing
		l.ClaimedAt = &claimed
		l.ClaimToken = token
		out = append(out, *l)
	}
	return out, nil
}

func (s *memStore) processing(id uint) (*models.AutomationLog, error) {
	l, ok := s.logs[id]
	if !ok || l.Status != models.LogProcessing {
		return nil, errors.New("entry not processing")
	}
	return l, nil
}

func (s *memStore) Complete(ctx context.Context, id uint, processedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.processing(id)
	if err != nil {
		return err
	}
	l.Status = models.LogCompleted
	l.ProcessedAt = &processedAt
	return nil
}

func (s *memStore) Fail(ctx context.Context, id uint, message string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.processing(id)
	if err != nil {
		return err
	}
	l.Status = models.LogFailed
	l.Message = message
	l.ProcessedAt = &at
	return nil
}

func (s *memStore) Retry(ctx context.Context, id uint, scheduledFor time.Time, attempts int, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.processing(id)
	if err != nil {
		return err
	}
	l.Status = models.LogQueued
	l.ScheduledFor = &scheduledFor
	l.Attempts = attempts
	l.Message = message
	l.ClaimedAt = nil
	l.ClaimToken = ""
	return nil
}

func (s *memStore) ReleaseStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.logs {
		if l.Status == models.LogProcessing && l.ClaimedAt != nil && l.ClaimedAt.Before(claimedBefore) {
			l.Status = models.LogQueued
			l.ClaimedAt = nil
			l.ClaimToken = ""
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkScanned(_ context.Context, automationID, contactID uint, windowStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scanKey{automationID, contactID, windowStart.UTC()}
	if s.scans[k] {
		return false, nil
	}
	s.scans[k] = true
	return true, nil
}

func (s *memStore) GetContact(_ context.Context, userID, contactID uint) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Tags = append([]models.ContactTag(nil), c.Tags...)
	return &cp, nil
}

func (s *memStore) SetTags(_ context.Context, contactID uint, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contacts[contactID]
	c.Tags = nil
	for _, t := range tags {
		c.Tags = append(c.Tags, models.ContactTag{ContactID: contactID, Tag: t})
	}
	return nil
}

func (s *memStore) AssignStage(_ context.Context, contactID, stageID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contacts[contactID]
	c.Stages = append(c.Stages, models.ContactStage{ContactID: contactID, StageID: stageID, AssignedAt: at})
	return nil
}

func (s *memStore) StageOwned(_ context.Context, userID, stageID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.stages[stageID]
	return ok && owner == userID, nil
}

func (s *memStore) ContactsCreatedBetween(_ context.Context, userID uint, from, to time.Time) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, c := range s.contacts {
		if c.UserID == userID && !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memStore) GetTemplate(_ context.Context, userID, templateID uint) (*models.EmailTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetUserEmail(_ context.Context, userID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.users[userID]
	if !ok {
		return "", ErrNotFound
	}
	return email, nil
}

// fakeMailer records sent mail and returns queued errors first
type fakeMailer struct {
	mu     sync.Mutex
	sent   []utils.Email
	errors []error
	// onSent runs after each delivered email
	onSent func()
}

func (m *fakeMailer) Send(_ context.Context, email utils.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		if err != nil {
			return err
		}
	}
	m.sent = append(m.sent, email)
	if m.onSent != nil {
		m.onSent()
	}
	return nil
}

func (m *fakeMailer) Sent() []utils.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]utils.Email(nil), m.sent...)
}
