package controller

import (
	"github.com/gofiber/fiber/v2"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// GetCampaigns lists the tenant's campaigns, newest first, with recipients
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := currentUser(c)

	var campaigns []models.EmailCampaign
	if err := cc.DB.WithContext(c.UserContext()).
		Preload("Recipients").
		Where("user_id = ?", user.ID).
		Order("created_at DESC, id DESC").
		Find(&campaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaigns", err)
	}
	return c.JSON(fiber.Map{"campaigns": campaigns})
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var campaign models.EmailCampaign
	if err := cc.DB.WithContext(c.UserContext()).
		Preload("Recipients").
		Where("id = ? AND user_id = ?", id, user.ID).
		First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Campaign not found",
		})
	}
	return c.JSON(fiber.Map{"campaign": campaign})
}
