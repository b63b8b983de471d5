package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"simpleautomate/metrics"
	"simpleautomate/models"
	"simpleautomate/utils"
)

// CampaignResult counts recipient outcomes of one dispatch
type CampaignResult struct {
	Sent    int `json:"sent"`
	Bounced int `json:"bounced"`
	Failed  int `json:"failed"`
}

// CampaignDispatcher delivers campaigns to their pending recipients
type CampaignDispatcher struct {
	DB      *gorm.DB
	Mailer  utils.Mailer
	Limiter *rate.Limiter
	Logger  *logrus.Entry
	Now     func() time.Time

	// TrackingURL is the public prefix of the open-tracking pixel. Empty
	// disables tracking.
	TrackingURL string
}

// NewCampaignDispatcher throttles delivery to perSecond emails; zero or less
// means unthrottled.
func NewCampaignDispatcher(db *gorm.DB, mailer utils.Mailer, perSecond int) *CampaignDispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &CampaignDispatcher{
		DB:      db,
		Mailer:  mailer,
		Limiter: rate.NewLimiter(limit, 1),
		Logger:  utils.Component("campaigns"),
		Now:     time.Now,
	}
}

// DispatchNow sends the campaign to every PENDING recipient and marks the
// campaign SENT. Recipients whose contact has no email address are BOUNCED.
// A failed send leaves the recipient PENDING and is counted as failed. When
// the dispatch is interrupted the campaign goes back to SCHEDULED so a later
// sweep finishes the remaining recipients.
func (d *CampaignDispatcher) DispatchNow(ctx context.Context, campaignID uint) (result CampaignResult, err error) {
	// status writes after a send must land even when ctx is cancelled
	bookkeeping := context.WithoutCancel(ctx)
	defer func() {
		if err != nil {
			d.reschedule(bookkeeping, campaignID)
		}
	}()

	var campaign models.EmailCampaign
	err = d.DB.WithContext(ctx).
		Preload("Recipients", "status = ?", models.RecipientPending).
		First(&campaign, campaignID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, nil
		}
		return result, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}

	log := d.Logger.WithFields(logrus.Fields{"campaign_id": campaign.ID, "user_id": campaign.UserID})

	for _, recipient := range campaign.Recipients {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var contact models.Contact
		err := d.DB.WithContext(ctx).Unscoped().
			Where("id = ? AND user_id = ?", recipient.ContactID, campaign.UserID).
			First(&contact).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return result, err
		}
		if err != nil || contact.Email == nil || *contact.Email == "" {
			if err := d.setRecipientStatus(bookkeeping, recipient.ID, models.RecipientBounced, nil); err != nil {
				return result, err
			}
			result.Bounced++
			metrics.RecordCampaignRecipient(models.RecipientBounced)
			continue
		}

		if err := d.Limiter.Wait(ctx); err != nil {
			return result, err
		}

		merge := utils.MergeContact{Name: contact.Name, Email: *contact.Email}
		if contact.Phone != nil {
			merge.Phone = *contact.Phone
		}
		body := utils.RenderMergeFields(campaign.Body, merge)
		if d.TrackingURL != "" && recipient.TrackingToken != "" {
			body += trackingPixel(d.TrackingURL, recipient.TrackingToken)
		}
		email := utils.Email{
			To:      *contact.Email,
			Subject: utils.RenderMergeFields(campaign.Subject, merge),
			HTML:    utils.RenderEmailLayout(campaign.Name, body),
		}
		if err := d.Mailer.Send(ctx, email); err != nil {
			log.WithError(err).WithField("recipient_id", recipient.ID).Warn("Campaign email failed")
			result.Failed++
			metrics.RecordCampaignRecipient("FAILED")
			continue
		}

		sentAt := d.Now()
		if err := d.setRecipientStatus(bookkeeping, recipient.ID, models.RecipientSent, &sentAt); err != nil {
			return result, err
		}
		result.Sent++
		metrics.RecordCampaignRecipient(models.RecipientSent)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := d.DB.WithContext(bookkeeping).Model(&models.EmailCampaign{}).
		Where("id = ?", campaign.ID).
		Update("status", models.CampaignSent).Error; err != nil {
		return result, err
	}

	log.WithFields(logrus.Fields{
		"sent":    result.Sent,
		"bounced": result.Bounced,
		"failed":  result.Failed,
	}).Info("Campaign dispatched")
	return result, nil
}

func trackingPixel(baseURL, token string) string {
	src := strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(token) + "/open.gif"
	return `<img src="` + html.EscapeString(src) + `" width="1" height="1" alt="" style="display:none">`
}

// reschedule returns an interrupted SENDING campaign to SCHEDULED, due now
// unless it already had a send time.
func (d *CampaignDispatcher) reschedule(ctx context.Context, campaignID uint) {
	log := d.Logger.WithField("campaign_id", campaignID)
	res := d.DB.WithContext(ctx).Model(&models.EmailCampaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignSending).
		Updates(map[string]interface{}{
			"status":        models.CampaignScheduled,
			"scheduled_for": gorm.Expr("COALESCE(scheduled_for, ?)", d.Now()),
		})
	if res.Error != nil {
		log.WithError(res.Error).Error("Failed to reschedule interrupted campaign")
		return
	}
	if res.RowsAffected == 1 {
		log.Warn("Campaign dispatch interrupted, rescheduled")
	}
}

func (d *CampaignDispatcher) setRecipientStatus(ctx context.Context, id uint, status string, sentAt *time.Time) error {
	fields := map[string]interface{}{"status": status}
	if sentAt != nil {
		fields["sent_at"] = *sentAt
	}
	return d.DB.WithContext(ctx).Model(&models.EmailCampaignRecipient{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ProcessScheduled dispatches every SCHEDULED campaign that is due. Each
// campaign is moved to SENDING with a conditional update first, so two
// overlapping sweeps never dispatch the same campaign.
func (d *CampaignDispatcher) ProcessScheduled(ctx context.Context) (int, error) {
	var due []models.EmailCampaign
	err := d.DB.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.CampaignScheduled, d.Now()).
		Order("scheduled_for ASC, id ASC").
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	dispatched := 0
	var errs []error
	for _, campaign := range due {
		res := d.DB.WithContext(ctx).Model(&models.EmailCampaign{}).
			Where("id = ? AND status = ?", campaign.ID, models.CampaignScheduled).
			Update("status", models.CampaignSending)
		if res.Error != nil {
			errs = append(errs, res.Error)
			continue
		}
		if res.RowsAffected != 1 {
			continue
		}
		if _, err := d.DispatchNow(ctx, campaign.ID); err != nil {
			utils.LogError("campaign_dispatch", err, map[string]interface{}{"campaign_id": campaign.ID})
			errs = append(errs, err)
			continue
		}
		dispatched++
	}
	return dispatched, errors.Join(errs...)
}
