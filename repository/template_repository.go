package repository

import (
	"context"

	"gorm.io/gorm"

	"simpleautomate/models"
)

type TemplateRepository struct {
	DB *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{DB: db}
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, userID, templateID uint) (*models.EmailTemplate, error) {
	var t models.EmailTemplate
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", templateID, userID).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// EnsureDefaults seeds the starter templates for a tenant that has none
func (r *TemplateRepository) EnsureDefaults(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.EmailTemplate{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		defaults := models.DefaultTemplates(userID)
		return tx.Create(&defaults).Error
	})
}

func (r *TemplateRepository) List(ctx context.Context, userID uint) ([]models.EmailTemplate, error) {
	if err := r.EnsureDefaults(ctx, userID); err != nil {
		return nil, err
	}
	var templates []models.EmailTemplate
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&templates).Error
	return templates, err
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.EmailTemplate) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *TemplateRepository) Update(ctx context.Context, userID, id uint, fields map[string]interface{}) (*models.EmailTemplate, error) {
	t, err := r.GetTemplate(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Model(t).Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.GetTemplate(ctx, userID, id)
}

func (r *TemplateRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.EmailTemplate{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) GetUserEmail(ctx context.Context, userID uint) (string, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Select("id", "email").First(&user, userID).Error; err != nil {
		return "", notFound(err)
	}
	return user.Email, nil
}
