package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"simpleautomate/models"
)

// 1x1 transparent GIF
var transparentPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// HandleOpenTracking records the first open of a campaign email. It always
// answers with the pixel so mail clients never show a broken image.
func (cc *CampaignController) HandleOpenTracking(c *fiber.Ctx) error {
	token := c.Params("token")
	if token != "" {
		res := cc.DB.WithContext(c.UserContext()).Model(&models.EmailCampaignRecipient{}).
			Where("tracking_token = ? AND opened_at IS NULL", token).
			Update("opened_at", time.Now())
		if res.Error != nil {
			cc.Logger.WithError(res.Error).Warn("Failed to record campaign open")
		}
	}

	c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
	return c.Type("gif").Send(transparentPixel)
}
