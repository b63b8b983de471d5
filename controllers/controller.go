package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"simpleautomate/automation"
	"simpleautomate/models"
	"simpleautomate/repository"
	"simpleautomate/utils"
)

// Triggerer starts the automations that match a contact event
type Triggerer interface {
	Trigger(ctx context.Context, ev automation.TriggerEvent) error
}

func currentUser(c *fiber.Ctx) *models.User {
	return c.Locals("user").(*models.User)
}

// bindBody decodes and validates the request body into input. On failure it
// returns the message to answer 400 with.
func bindBody(c *fiber.Ctx, input interface{}) (string, error) {
	if err := c.BodyParser(input); err != nil {
		return "Invalid request body", err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return "Validation failed", err
	}
	return "", nil
}

// lookupError answers 404 with notFoundMsg for missing rows and 500 otherwise
func lookupError(c *fiber.Ctx, err error, notFoundMsg, failMsg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, notFoundMsg, nil)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, failMsg, err)
}
