package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

type CampaignStats struct {
	Recipients int64 `json:"recipients"`
	Pending    int64 `json:"pending"`
	Sent       int64 `json:"sent"`
	Bounced    int64 `json:"bounced"`
	Opened     int64 `json:"opened"`
	Clicked    int64 `json:"clicked"`
}

// GetCampaignStats counts the campaign's recipients by delivery status
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var campaign models.EmailCampaign
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND user_id = ?", id, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Campaign not found",
		})
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := cc.DB.WithContext(c.UserContext()).Model(&models.EmailCampaignRecipient{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaign.ID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign stats", err)
	}

	var stats CampaignStats
	for _, r := range rows {
		stats.Recipients += r.Count
		switch r.Status {
		case models.RecipientPending:
			stats.Pending = r.Count
		case models.RecipientSent:
			stats.Sent = r.Count
		case models.RecipientBounced:
			stats.Bounced = r.Count
		}
	}

	recipients := cc.DB.WithContext(c.UserContext()).Model(&models.EmailCampaignRecipient{}).Where("campaign_id = ?", campaign.ID)
	if err := recipients.Session(&gorm.Session{}).Where("opened_at IS NOT NULL").Count(&stats.Opened).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign stats", err)
	}
	if err := recipients.Session(&gorm.Session{}).Where("clicked_at IS NOT NULL").Count(&stats.Clicked).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign stats", err)
	}

	return c.JSON(fiber.Map{"campaign": campaign, "stats": stats})
}
