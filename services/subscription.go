package services

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// SubscriptionService keeps a user's subscription status current
type SubscriptionService struct {
	DB *gorm.DB
	// FetchSubscription is nil when Stripe is not configured
	FetchSubscription func(id string) (*stripe.Subscription, error)
	Now               func() time.Time
}

func NewSubscriptionService(db *gorm.DB, stripeEnabled bool) *SubscriptionService {
	s := &SubscriptionService{DB: db, Now: time.Now}
	if stripeEnabled {
		s.FetchSubscription = utils.GetStripeSubscription
	}
	return s
}

// Refresh expires a lapsed trial and, when the user has a Stripe
// subscription, takes its status from Stripe. Stripe errors are logged and
// leave the local status in place.
func (s *SubscriptionService) Refresh(ctx context.Context, user *models.User) (*models.User, error) {
	status := user.SubscriptionStatus

	if user.TrialEndsAt != nil && s.Now().After(*user.TrialEndsAt) && status == models.SubscriptionTrialing {
		status = models.SubscriptionExpired
	}

	if user.StripeSubscriptionID != nil && *user.StripeSubscriptionID != "" && s.FetchSubscription != nil {
		sub, err := s.FetchSubscription(*user.StripeSubscriptionID)
		if err != nil {
			utils.LogError("stripe_subscription_sync", err, map[string]interface{}{"user_id": user.ID})
		} else {
			status = string(sub.Status)
		}
	}

	if status == user.SubscriptionStatus {
		return user, nil
	}
	if err := s.DB.WithContext(ctx).Model(user).Update("subscription_status", status).Error; err != nil {
		return nil, err
	}
	user.SubscriptionStatus = status
	return user, nil
}

// ApplyStripeSubscription stores the state of a Stripe subscription on the
// user it belongs to. The user is found through the "userId" metadata key,
// falling back to the stored subscription and customer ids. It reports
// whether a user was updated.
func (s *SubscriptionService) ApplyStripeSubscription(ctx context.Context, sub *stripe.Subscription, deleted bool) (bool, error) {
	status := string(sub.Status)
	if deleted {
		status = models.SubscriptionCanceled
	}

	var user models.User
	q := s.DB.WithContext(ctx)
	if id := utils.ParseUint(sub.Metadata["userId"]); id != 0 {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("stripe_subscription_id = ?", sub.ID)
		if sub.Customer != nil && sub.Customer.ID != "" {
			q = q.Or("stripe_customer_id = ?", sub.Customer.ID)
		}
	}
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	fields := map[string]interface{}{
		"subscription_status":    status,
		"stripe_subscription_id": sub.ID,
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		fields["stripe_customer_id"] = sub.Customer.ID
	}
	if err := s.DB.WithContext(ctx).Model(&user).Updates(fields).Error; err != nil {
		return false, err
	}
	return true, nil
}
