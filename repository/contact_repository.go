package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"simpleautomate/models"
)

type ContactRepository struct {
	DB *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{DB: db}
}

// ContactFilter narrows a contact listing
type ContactFilter struct {
	Search string
	Tag    string
}

func withHistory(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("assigned_at ASC, id ASC") }).
		Preload("Stages.Stage")
}

func (r *ContactRepository) GetContact(ctx context.Context, userID, contactID uint) (*models.Contact, error) {
	var c models.Contact
	err := withHistory(r.DB.WithContext(ctx)).
		Where("id = ? AND user_id = ?", contactID, userID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SetTags replaces the contact's tag set
func (r *ContactRepository) SetTags(ctx context.Context, contactID uint, tags []string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceTags(tx, contactID, tags)
	})
}

func replaceTags(tx *gorm.DB, contactID uint, tags []string) error {
	if err := tx.Where("contact_id = ?", contactID).Delete(&models.ContactTag{}).Error; err != nil {
		return err
	}
	rows := make([]models.ContactTag, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		rows = append(rows, models.ContactTag{ContactID: contactID, Tag: tag})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

func (r *ContactRepository) AssignStage(ctx context.Context, contactID, stageID uint, at time.Time) error {
	return r.DB.WithContext(ctx).Create(&models.ContactStage{
		ContactID:  contactID,
		StageID:    stageID,
		AssignedAt: at,
	}).Error
}

func (r *ContactRepository) ContactsCreatedBetween(ctx context.Context, userID uint, from, to time.Time) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&models.Contact{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ====================== Contact CRUD ======================

// Create stores a contact with its tags and, when stageID is set, its first
// stage assignment.
func (r *ContactRepository) Create(ctx context.Context, c *models.Contact, tags []string, stageID uint, at time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tags", "Stages", "Tasks", "Notes").Create(c).Error; err != nil {
			return err
		}
		if err := replaceTags(tx, c.ID, tags); err != nil {
			return err
		}
		if stageID == 0 {
			return nil
		}
		return tx.Create(&models.ContactStage{ContactID: c.ID, StageID: stageID, AssignedAt: at}).Error
	})
}

func (r *ContactRepository) List(ctx context.Context, userID uint, filter ContactFilter) ([]models.Contact, error) {
	q := withHistory(r.DB.WithContext(ctx)).Where("user_id = ?", userID)

	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)", like, like, like)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		q = q.Where("id IN (?)", r.DB.Model(&models.ContactTag{}).Select("contact_id").Where("tag = ?", tag))
	}

	var contacts []models.Contact
	err := q.Order("created_at DESC, id DESC").Find(&contacts).Error
	return contacts, err
}

// Update applies field changes and, when tags is not nil, replaces the tag set
func (r *ContactRepository) Update(ctx context.Context, userID, id uint, fields map[string]interface{}, tags []string) (*models.Contact, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Contact
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
			return notFound(err)
		}
		if len(fields) > 0 {
			if err := tx.Model(&c).Updates(fields).Error; err != nil {
				return err
			}
		}
		if tags != nil {
			return replaceTags(tx, id, tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetContact(ctx, userID, id)
}

func (r *ContactRepository) Delete(ctx context.Context, userID, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Contact
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("contact_id = ?", id).Delete(&models.ContactTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("contact_id = ?", id).Delete(&models.ContactStage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	})
}

// StageOwned reports whether the stage belongs to one of the tenant's pipelines
func (r *ContactRepository) StageOwned(ctx context.Context, userID, stageID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.Stage{}).
		Joins("JOIN pipelines ON pipelines.id = stages.pipeline_id AND pipelines.deleted_at IS NULL").
		Where("stages.id = ? AND pipelines.user_id = ?", stageID, userID).
		Count(&count).Error
	return count > 0, err
}
