package controller

import (
	"context"
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"simpleautomate/services"
	"simpleautomate/utils"
)

// SweepRunner runs one pass of the periodic jobs
type SweepRunner interface {
	Run(ctx context.Context) (services.SweepReport, error)
}

type CronController struct {
	Sweeper SweepRunner
	Secret  string
	Logger  *logrus.Entry
}

func NewCronController(sweeper SweepRunner, secret string) *CronController {
	return &CronController{
		Sweeper: sweeper,
		Secret:  secret,
		Logger:  utils.Component("cron"),
	}
}

// Run is called by an external scheduler with the shared cron secret
func (cc *CronController) Run(c *fiber.Ctx) error {
	var input struct {
		Secret string `json:"secret"`
	}
	_ = c.BodyParser(&input)

	if cc.Secret == "" || subtle.ConstantTimeCompare([]byte(input.Secret), []byte(cc.Secret)) != 1 {
		cc.Logger.WithField("ip", c.IP()).Warn("Rejected cron call")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Unauthorized cron",
		})
	}

	report, err := cc.Sweeper.Run(c.UserContext())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Sweep finished with errors", err)
	}
	return c.JSON(fiber.Map{"ok": true, "report": report})
}
