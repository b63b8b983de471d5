package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"simpleautomate/automation"
	"simpleautomate/models"
)

// ErrNotFound is shared with the engine so it can tell missing rows apart
var ErrNotFound = automation.ErrNotFound

// ErrNotClaimed is returned when a queue entry changed state under us, for
// example after its claim expired and another worker took it.
var ErrNotClaimed = errors.New("automation log is not being processed")

// RecentLogLimit is how many log entries the automation listing carries
const RecentLogLimit = 10

type AutomationRepository struct {
	DB *gorm.DB
}

func NewAutomationRepository(db *gorm.DB) *AutomationRepository {
	return &AutomationRepository{DB: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ====================== Engine store ======================

func (r *AutomationRepository) FindActiveAutomations(ctx context.Context, userID uint, trigger models.TriggerType) ([]models.Automation, error) {
	var automations []models.Automation
	err := r.DB.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("user_id = ? AND active = ? AND trigger_type = ?", userID, true, trigger).
		Order("id ASC").
		Find(&automations).Error
	return automations, err
}

func (r *AutomationRepository) FindActiveByTrigger(ctx context.Context, trigger models.TriggerType) ([]models.Automation, error) {
	var automations []models.Automation
	err := r.DB.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("active = ? AND trigger_type = ?", true, trigger).
		Order("id ASC").
		Find(&automations).Error
	return automations, err
}

func (r *AutomationRepository) ListSteps(ctx context.Context, automationID uint) ([]models.AutomationStep, error) {
	var steps []models.AutomationStep
	err := r.DB.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("position ASC").
		Find(&steps).Error
	return steps, err
}

func (r *AutomationRepository) GetStep(ctx context.Context, automationID, stepID uint) (*models.AutomationStep, error) {
	var step models.AutomationStep
	err := r.DB.WithContext(ctx).
		Where("id = ? AND automation_id = ?", stepID, automationID).
		First(&step).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &step, nil
}

func (r *AutomationRepository) Enqueue(ctx context.Context, entry *models.AutomationLog) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

// ClaimDue selects due entries oldest first and claims each one with a
// conditional update, so concurrent sweeps never both win the same entry.
func (r *AutomationRepository) ClaimDue(ctx context.Context, now time.Time, limit int, token string) ([]models.AutomationLog, error) {
	db := r.DB.WithContext(ctx)

	var candidates []models.AutomationLog
	err := db.
		Where("status = ?", models.LogQueued).
		Where("(scheduled_for IS NULL OR scheduled_for <= ?)", now).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]models.AutomationLog, 0, len(candidates))
	for _, entry := range candidates {
		res := db.Model(&models.AutomationLog{}).
			Where("id = ? AND status = ?", entry.ID, models.LogQueued).
			Updates(map[string]interface{}{
				"status":      models.LogProcessing,
				"claimed_at":  now,
				"claim_token": token,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected != 1 {
			continue
		}
		claimedAt := now
		entry.Status = models.LogProcessing
		entry.ClaimedAt = &claimedAt
		entry.ClaimToken = token
		claimed = append(claimed, entry)
	}
	return claimed, nil
}

func (r *AutomationRepository) updateProcessing(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.DB.WithContext(ctx).Model(&models.AutomationLog{}).
		Where("id = ? AND status = ?", id, models.LogProcessing).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (r *AutomationRepository) Complete(ctx context.Context, id uint, processedAt time.Time) error {
	return r.updateProcessing(ctx, id, map[string]interface{}{
		"status":       models.LogCompleted,
		"processed_at": processedAt,
	})
}

func (r *AutomationRepository) Fail(ctx context.Context, id uint, message string, at time.Time) error {
	return r.updateProcessing(ctx, id, map[string]interface{}{
		"status":       models.LogFailed,
		"message":      message,
		"processed_at": at,
	})
}

func (r *AutomationRepository) Retry(ctx context.Context, id uint, scheduledFor time.Time, attempts int, message string) error {
	return r.updateProcessing(ctx, id, map[string]interface{}{
		"status":        models.LogQueued,
		"scheduled_for": scheduledFor,
		"attempts":      attempts,
		"message":       message,
		"claimed_at":    nil,
		"claim_token":   "",
	})
}

func (r *AutomationRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.AutomationLog{}).
		Where("status = ? AND claimed_at < ?", models.LogProcessing, claimedBefore).
		Updates(map[string]interface{}{
			"status":      models.LogQueued,
			"claimed_at":  nil,
			"claim_token": "",
		})
	return res.RowsAffected, res.Error
}

func (r *AutomationRepository) MarkScanned(ctx context.Context, automationID, contactID uint, windowStart time.Time) (bool, error) {
	scan := models.AutomationScan{
		AutomationID: automationID,
		ContactID:    contactID,
		WindowStart:  windowStart.UTC(),
	}
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&scan)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ====================== Automation CRUD ======================

// ListAutomations returns the tenant's automations with ordered steps and
// the most recent log entries of each.
func (r *AutomationRepository) ListAutomations(ctx context.Context, userID uint) ([]models.Automation, error) {
	var automations []models.Automation
	err := r.DB.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&automations).Error
	if err != nil {
		return nil, err
	}

	for i := range automations {
		logs, err := r.ListLogs(ctx, userID, automations[i].ID, RecentLogLimit)
		if err != nil {
			return nil, err
		}
		automations[i].Logs = logs
	}
	return automations, nil
}

func (r *AutomationRepository) GetAutomation(ctx context.Context, userID, id uint) (*models.Automation, error) {
	var a models.Automation
	err := r.DB.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// CreateAutomation inserts the automation and its steps, numbering the steps
// by their order in the slice.
func (r *AutomationRepository) CreateAutomation(ctx context.Context, a *models.Automation) error {
	for i := range a.Steps {
		a.Steps[i].Position = i
	}
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *AutomationRepository) UpdateAutomation(ctx context.Context, userID, id uint, fields map[string]interface{}) (*models.Automation, error) {
	res := r.DB.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetAutomation(ctx, userID, id); err != nil {
			return nil, err
		}
	}
	return r.GetAutomation(ctx, userID, id)
}

// ReplaceSteps swaps the whole step list in one transaction. Queued entries
// that point at removed steps fail with a missing step reference.
func (r *AutomationRepository) ReplaceSteps(ctx context.Context, userID, automationID uint, steps []models.AutomationStep) (*models.Automation, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Automation
		if err := tx.Where("id = ? AND user_id = ?", automationID, userID).First(&a).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Unscoped().Where("automation_id = ?", automationID).Delete(&models.AutomationStep{}).Error; err != nil {
			return err
		}
		if len(steps) == 0 {
			return nil
		}
		for i := range steps {
			steps[i].ID = 0
			steps[i].AutomationID = automationID
			steps[i].Position = i
		}
		return tx.Create(&steps).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetAutomation(ctx, userID, automationID)
}

// DeleteAutomation removes the automation with its steps and log history
func (r *AutomationRepository) DeleteAutomation(ctx context.Context, userID, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Automation
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&a).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Unscoped().Where("automation_id = ?", id).Delete(&models.AutomationLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("automation_id = ?", id).Delete(&models.AutomationScan{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("automation_id = ?", id).Delete(&models.AutomationStep{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&a).Error
	})
}

func (r *AutomationRepository) ListLogs(ctx context.Context, userID, automationID uint, limit int) ([]models.AutomationLog, error) {
	var logs []models.AutomationLog
	q := r.DB.WithContext(ctx).
		Where("user_id = ? AND automation_id = ?", userID, automationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}
