package services

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/repository"
	"simpleautomate/utils"
)

var (
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidVerification = errors.New("invalid verification token")
)

// AccountService owns signup, login and email verification
type AccountService struct {
	DB         *gorm.DB
	Pipelines  *repository.PipelineRepository
	Templates  *repository.TemplateRepository
	Mailer     utils.Mailer
	AppBaseURL string
	TrialDays  int
	Now        func() time.Time
}

func NewAccountService(db *gorm.DB, mailer utils.Mailer, appBaseURL string, trialDays int) *AccountService {
	return &AccountService{
		DB:         db,
		Pipelines:  repository.NewPipelineRepository(db),
		Templates:  repository.NewTemplateRepository(db),
		Mailer:     mailer,
		AppBaseURL: strings.TrimRight(appBaseURL, "/"),
		TrialDays:  trialDays,
		Now:        time.Now,
	}
}

// Signup creates a trialing account, seeds its default pipeline and
// templates and sends the verification email. A failed verification email
// does not fail the signup.
func (s *AccountService) Signup(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAccountExists
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	trialEndsAt := s.Now().Add(time.Duration(s.TrialDays) * 24 * time.Hour)

	user := &models.User{
		Email:              email,
		PasswordHash:       hash,
		VerificationToken:  &token,
		TrialEndsAt:        &trialEndsAt,
		SubscriptionStatus: models.SubscriptionTrialing,
	}
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if _, err := s.Pipelines.EnsureDefaultPipeline(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("seed pipeline: %w", err)
	}
	if err := s.Templates.EnsureDefaults(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("seed templates: %w", err)
	}

	if err := s.sendVerification(ctx, user.Email, token); err != nil {
		utils.LogError("verification_email", err, map[string]interface{}{"user_id": user.ID})
	}
	return user, nil
}

func (s *AccountService) sendVerification(ctx context.Context, email, token string) error {
	verifyURL := s.AppBaseURL + "/verify-email?token=" + token
	return s.Mailer.Send(ctx, utils.Email{
		To:      email,
		Subject: "Verify your SimpleAutomate email",
		HTML: utils.RenderEmailLayout("Verify your email",
			`Finish setting up SimpleAutomate by clicking <a href="`+template.HTMLEscapeString(verifyURL)+`">verify email</a>.`),
	})
}

// Authenticate checks an email and password pair
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// VerifyEmail consumes a verification token
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("verification_token = ?", token).
		Updates(map[string]interface{}{
			"email_verified":     true,
			"verification_token": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidVerification
	}
	return nil
}

// RequestVerification issues a fresh verification token when the account
// exists. Unknown addresses are ignored.
func (s *AccountService) RequestVerification(ctx context.Context, email string) error {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token := uuid.NewString()
	if err := s.DB.WithContext(ctx).Model(&user).Update("verification_token", token).Error; err != nil {
		return err
	}
	return s.sendVerification(ctx, user.Email, token)
}
