package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// DeleteCampaign removes a campaign and its recipient rows
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
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

	err = cc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("campaign_id = ?", campaign.ID).Delete(&models.EmailCampaignRecipient{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&campaign).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete campaign", err)
	}

	cc.Logger.WithField("campaign_id", campaign.ID).Info("Campaign deleted")
	return c.SendStatus(fiber.StatusNoContent)
}
