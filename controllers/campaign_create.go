package controller

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// CreateCampaign stores a campaign for the tenant's contacts among
// contactIds. Without scheduledFor it is dispatched right away; otherwise the
// sweep sends it once due.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := currentUser(c)

	var input struct {
		Name         string `json:"name" validate:"required,min=2,max=200"`
		Subject      string `json:"subject" validate:"required,min=1,max=255"`
		Body         string `json:"body" validate:"required,min=1"`
		ContactIDs   []uint `json:"contactIds" validate:"required,min=1"`
		ScheduledFor string `json:"scheduledFor"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	var scheduledFor *time.Time
	if s := strings.TrimSpace(input.ScheduledFor); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "scheduledFor must be an RFC 3339 timestamp", err)
		}
		scheduledFor = &t
	}

	ctx := c.UserContext()

	// ids of other tenants are silently dropped
	var contactIDs []uint
	if err := cc.DB.WithContext(ctx).Model(&models.Contact{}).
		Where("id IN ? AND user_id = ?", input.ContactIDs, user.ID).
		Order("id ASC").
		Pluck("id", &contactIDs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load contacts", err)
	}

	status := models.CampaignSending
	if scheduledFor != nil {
		status = models.CampaignScheduled
	}
	campaign := models.EmailCampaign{
		UserID:       user.ID,
		Name:         strings.TrimSpace(input.Name),
		Subject:      input.Subject,
		Body:         input.Body,
		Status:       status,
		ScheduledFor: scheduledFor,
	}
	for _, id := range contactIDs {
		campaign.Recipients = append(campaign.Recipients, models.EmailCampaignRecipient{
			ContactID:     id,
			Status:        models.RecipientPending,
			TrackingToken: uuid.NewString(),
		})
	}
	if err := cc.DB.WithContext(ctx).Create(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", err)
	}

	log := cc.Logger.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"campaign_id": campaign.ID,
		"recipients":  len(contactIDs),
		"status":      status,
	})
	log.Info("Campaign created")

	if scheduledFor == nil && cc.Sender != nil {
		result, err := cc.Sender.DispatchNow(ctx, campaign.ID)
		if err != nil {
			utils.LogError("campaign_dispatch", err, map[string]interface{}{"campaign_id": campaign.ID})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send campaign", err)
		}
		log.WithFields(logrus.Fields{
			"sent":    result.Sent,
			"bounced": result.Bounced,
			"failed":  result.Failed,
		}).Info("Campaign dispatched")

		if err := cc.DB.WithContext(ctx).Preload("Recipients").First(&campaign, campaign.ID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"campaign": campaign})
}
