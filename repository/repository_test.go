package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"simpleautomate/automation"
	"simpleautomate/config"
	"simpleautomate/models"
	"simpleautomate/utils"
)

var now = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.MigrateDB(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	u := models.User{Email: email, PasswordHash: "x", SubscriptionStatus: models.SubscriptionTrialing}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedAutomation(t *testing.T, repo *AutomationRepository, userID uint, trigger models.TriggerType, steps ...models.AutomationStep) *models.Automation {
	t.Helper()
	a := &models.Automation{UserID: userID, Name: "Welcome", Active: true, TriggerType: trigger, Steps: steps}
	require.NoError(t, repo.CreateAutomation(context.Background(), a))
	return a
}

func enqueue(t *testing.T, repo *AutomationRepository, a *models.Automation, stepID uint, scheduled *time.Time) models.AutomationLog {
	t.Helper()
	contact := uint(1)
	entry := models.AutomationLog{
		AutomationID: a.ID,
		UserID:       a.UserID,
		ContactID:    &contact,
		StepID:       stepID,
		Status:       models.LogQueued,
		ScheduledFor: scheduled,
	}
	require.NoError(t, repo.Enqueue(context.Background(), &entry))
	return entry
}

func TestFindActiveAutomationsOrdersSteps(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")

	a := seedAutomation(t, repo, u.ID, models.TriggerNewContact,
		models.AutomationStep{Type: models.StepSendEmail, Config: datatypes.JSONMap{"subject": "Hi"}},
		models.AutomationStep{Type: models.StepDelay},
	)
	inactive := seedAutomation(t, repo, u.ID, models.TriggerNewContact, models.AutomationStep{Type: models.StepDelay})
	require.NoError(t, db.Model(inactive).Update("active", false).Error)
	seedAutomation(t, repo, u.ID, models.TriggerDate, models.AutomationStep{Type: models.StepDelay})

	found, err := repo.FindActiveAutomations(ctx, u.ID, models.TriggerNewContact)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)
	require.Len(t, found[0].Steps, 2)
	assert.Equal(t, models.StepSendEmail, found[0].Steps[0].Type)
	assert.Equal(t, 0, found[0].Steps[0].Position)
	assert.Equal(t, "Hi", found[0].Steps[0].Config["subject"])

	byTrigger, err := repo.FindActiveByTrigger(ctx, models.TriggerDate)
	require.NoError(t, err)
	assert.Len(t, byTrigger, 1)

	_, err = repo.GetStep(ctx, a.ID, 9999)
	assert.ErrorIs(t, err, automation.ErrNotFound)

	got, err := repo.GetStep(ctx, a.ID, a.Steps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, a.Steps[1].ID, got.ID)

	// a step is only found through its own automation
	_, err = repo.GetStep(ctx, a.ID+1, a.Steps[1].ID)
	assert.ErrorIs(t, err, automation.ErrNotFound)
}

func TestClaimDueIsAtomicAndOrdered(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")
	a := seedAutomation(t, repo, u.ID, models.TriggerNewContact, models.AutomationStep{Type: models.StepDelay})
	stepID := a.Steps[0].ID

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	first := enqueue(t, repo, a, stepID, &past)
	second := enqueue(t, repo, a, stepID, nil)
	enqueue(t, repo, a, stepID, &future)
	fourth := enqueue(t, repo, a, stepID, &now)

	claimed, err := repo.ClaimDue(ctx, now, 2, "token-a")
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)
	assert.Equal(t, models.LogProcessing, claimed[0].Status)
	assert.Equal(t, "token-a", claimed[0].ClaimToken)

	// a second worker only gets what is left
	claimed, err = repo.ClaimDue(ctx, now, 10, "token-b")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, fourth.ID, claimed[0].ID)

	claimed, err = repo.ClaimDue(ctx, now, 10, "token-c")
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestTransitionsAreGuardedOnProcessing(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")
	a := seedAutomation(t, repo, u.ID, models.TriggerNewContact, models.AutomationStep{Type: models.StepDelay})
	entry := enqueue(t, repo, a, a.Steps[0].ID, nil)

	assert.ErrorIs(t, repo.Complete(ctx, entry.ID, now), ErrNotClaimed)

	_, err := repo.ClaimDue(ctx, now, 10, "t")
	require.NoError(t, err)
	require.NoError(t, repo.Retry(ctx, entry.ID, now.Add(time.Minute), 1, "timeout"))

	var stored models.AutomationLog
	require.NoError(t, db.First(&stored, entry.ID).Error)
	assert.Equal(t, models.LogQueued, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "timeout", stored.Message)
	assert.Nil(t, stored.ClaimedAt)

	claimed, err := repo.ClaimDue(ctx, now.Add(time.Minute), 10, "t2")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)

	require.NoError(t, repo.Fail(ctx, entry.ID, "Contact has no email address", now))
	assert.ErrorIs(t, repo.Fail(ctx, entry.ID, "again", now), ErrNotClaimed)

	require.NoError(t, db.First(&stored, entry.ID).Error)
	assert.Equal(t, models.LogFailed, stored.Status)
	assert.Equal(t, "Contact has no email address", stored.Message)
	require.NotNil(t, stored.ProcessedAt)
}

func TestReleaseStale(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")
	a := seedAutomation(t, repo, u.ID, models.TriggerNewContact, models.AutomationStep{Type: models.StepDelay})
	enqueue(t, repo, a, a.Steps[0].ID, nil)
	enqueue(t, repo, a, a.Steps[0].ID, nil)

	_, err := repo.ClaimDue(ctx, now, 1, "old")
	require.NoError(t, err)
	_, err = repo.ClaimDue(ctx, now.Add(9*time.Minute), 1, "new")
	require.NoError(t, err)

	n, err := repo.ReleaseStale(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var queued int64
	require.NoError(t, db.Model(&models.AutomationLog{}).Where("status = ?", models.LogQueued).Count(&queued).Error)
	assert.Equal(t, int64(1), queued)
}

func TestMarkScanned(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	ctx := context.Background()
	window := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	first, err := repo.MarkScanned(ctx, 1, 2, window)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkScanned(ctx, 1, 2, window)
	require.NoError(t, err)
	assert.False(t, again)

	nextDay, err := repo.MarkScanned(ctx, 1, 2, window.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, nextDay)
}

func TestReplaceStepsAndDeleteCascade(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")
	a := seedAutomation(t, repo, u.ID, models.TriggerNewContact,
		models.AutomationStep{Type: models.StepDelay}, models.AutomationStep{Type: models.StepDelay})
	enqueue(t, repo, a, a.Steps[0].ID, nil)

	_, err := repo.ReplaceSteps(ctx, other.ID, a.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := repo.ReplaceSteps(ctx, u.ID, a.ID, []models.AutomationStep{
		{Type: models.StepUpdateTags, Config: datatypes.JSONMap{"tags": []interface{}{"vip"}}},
		{Type: models.StepSendEmail},
		{Type: models.StepMoveStage},
	})
	require.NoError(t, err)
	require.Len(t, updated.Steps, 3)
	for i, s := range updated.Steps {
		assert.Equal(t, i, s.Position)
	}
	assert.Equal(t, models.StepUpdateTags, updated.Steps[0].Type)

	// the old step is gone for good
	_, err = repo.GetStep(ctx, a.ID, a.Steps[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := repo.ListAutomations(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Logs, 1)

	assert.ErrorIs(t, repo.DeleteAutomation(ctx, other.ID, a.ID), ErrNotFound)
	require.NoError(t, repo.DeleteAutomation(ctx, u.ID, a.ID))

	var steps, logs, automations int64
	db.Unscoped().Model(&models.AutomationStep{}).Count(&steps)
	db.Unscoped().Model(&models.AutomationLog{}).Count(&logs)
	db.Unscoped().Model(&models.Automation{}).Count(&automations)
	assert.Zero(t, steps)
	assert.Zero(t, logs)
	assert.Zero(t, automations)
}

func TestListLogsLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewAutomationRepository(db)
	u := seedUser(t, db, "owner@example.com")
	a := seedAutomation(t, repo, u.ID, models.TriggerNewContact, models.AutomationStep{Type: models.StepDelay})
	for i := 0; i < RecentLogLimit+3; i++ {
		enqueue(t, repo, a, a.Steps[0].ID, nil)
	}

	list, err := repo.ListAutomations(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, list[0].Logs, RecentLogLimit)

	all, err := repo.ListLogs(context.Background(), u.ID, a.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, RecentLogLimit+3)
}

func TestContactTagsAndHistory(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactRepository(db)
	pipelines := NewPipelineRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")

	pipeline, err := pipelines.EnsureDefaultPipeline(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, pipeline.Stages, 4)

	email := "ada@example.com"
	c := &models.Contact{UserID: u.ID, Name: "Ada", Email: &email}
	require.NoError(t, contacts.Create(ctx, c, []string{"lead", "lead", " "}, pipeline.Stages[0].ID, now))

	got, err := contacts.GetContact(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead"}, got.TagNames())

	require.NoError(t, contacts.SetTags(ctx, c.ID, []string{"lead", "warm"}))
	require.NoError(t, contacts.AssignStage(ctx, c.ID, pipeline.Stages[3].ID, now.Add(time.Hour)))

	got, err = contacts.GetContact(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead", "warm"}, got.TagNames())
	require.Len(t, got.Stages, 2)
	assert.Equal(t, pipeline.Stages[3].ID, got.CurrentStage().StageID)

	_, err = contacts.GetContact(ctx, u.ID+1, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	owned, err := contacts.StageOwned(ctx, u.ID, pipeline.Stages[1].ID)
	require.NoError(t, err)
	assert.True(t, owned)
	owned, err = contacts.StageOwned(ctx, u.ID+1, pipeline.Stages[1].ID)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestContactListFilters(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")

	ada := &models.Contact{UserID: u.ID, Name: "Ada Lovelace", Email: utils.Pointer("ada@example.com")}
	bob := &models.Contact{UserID: u.ID, Name: "Bob", Phone: utils.Pointer("555-0100")}
	require.NoError(t, contacts.Create(ctx, ada, []string{"vip"}, 0, now))
	require.NoError(t, contacts.Create(ctx, bob, nil, 0, now))

	found, err := contacts.List(ctx, u.ID, ContactFilter{Search: "LOVE"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ada.ID, found[0].ID)

	found, err = contacts.List(ctx, u.ID, ContactFilter{Tag: "vip"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ada.ID, found[0].ID)

	found, err = contacts.List(ctx, u.ID, ContactFilter{})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	updated, err := contacts.Update(ctx, u.ID, bob.ID, map[string]interface{}{"name": "Robert"}, []string{"cold"})
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.Name)
	assert.Equal(t, []string{"cold"}, updated.TagNames())

	require.NoError(t, contacts.Delete(ctx, u.ID, bob.ID))
	assert.ErrorIs(t, contacts.Delete(ctx, u.ID, bob.ID), ErrNotFound)
}

func TestContactsCreatedBetween(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	inside := &models.Contact{UserID: u.ID, Name: "Inside"}
	inside.CreatedAt = day.Add(3 * time.Hour)
	edge := &models.Contact{UserID: u.ID, Name: "Next day"}
	edge.CreatedAt = day.AddDate(0, 0, 1)
	require.NoError(t, db.Create(inside).Error)
	require.NoError(t, db.Create(edge).Error)

	ids, err := contacts.ContactsCreatedBetween(ctx, u.ID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []uint{inside.ID}, ids)
}

func TestPipelineBoardAndReorder(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactRepository(db)
	pipelines := NewPipelineRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")

	list, err := pipelines.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	p := list[0]
	assert.Equal(t, models.DefaultPipelineName, p.Name)

	// listing twice does not create a second default
	list, err = pipelines.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	staged := &models.Contact{UserID: u.ID, Name: "Staged"}
	loose := &models.Contact{UserID: u.ID, Name: "Loose"}
	require.NoError(t, contacts.Create(ctx, staged, nil, p.Stages[2].ID, now))
	require.NoError(t, contacts.Create(ctx, loose, nil, 0, now))

	board, err := pipelines.Board(ctx, u.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, board, 4)
	assert.Len(t, board[0].Contacts, 1)
	assert.Equal(t, loose.ID, board[0].Contacts[0].ID)
	assert.Len(t, board[2].Contacts, 1)

	stage, err := pipelines.AddStage(ctx, u.ID, p.ID, "Lost")
	require.NoError(t, err)
	assert.Equal(t, 4, stage.Position)

	ids := []uint{stage.ID, p.Stages[3].ID, p.Stages[2].ID, p.Stages[1].ID, p.Stages[0].ID}
	reordered, err := pipelines.ReorderStages(ctx, u.ID, p.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, "Lost", reordered.Stages[0].Name)
	assert.Equal(t, "New", reordered.Stages[4].Name)

	_, err = pipelines.ReorderStages(ctx, u.ID, p.ID, ids[:2])
	assert.ErrorIs(t, err, ErrStageMismatch)
}

func TestTemplatesSeedOnce(t *testing.T) {
	db := newTestDB(t)
	templates := NewTemplateRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "owner@example.com")

	list, err := templates.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Welcome sequence – day 1", list[0].Name)

	require.NoError(t, templates.Delete(ctx, u.ID, list[0].ID))
	list, err = templates.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = templates.GetTemplate(ctx, u.ID+1, list[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	email, err := NewUserRepository(db).GetUserEmail(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", email)
}
