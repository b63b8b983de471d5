package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/repository"
	"simpleautomate/utils"
)

type TemplateController struct {
	DB        *gorm.DB
	Templates *repository.TemplateRepository
	Logger    *logrus.Entry
}

func NewTemplateController(db *gorm.DB) *TemplateController {
	return &TemplateController{
		DB:        db,
		Templates: repository.NewTemplateRepository(db),
		Logger:    utils.Component("templates"),
	}
}

// GetTemplates seeds the starter templates on first use
func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	user := currentUser(c)

	templates, err := tc.Templates.List(c.UserContext(), user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch templates", err)
	}
	return c.JSON(fiber.Map{"templates": templates})
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	user := currentUser(c)

	var input struct {
		Name    string `json:"name" validate:"required,min=2,max=200"`
		Subject string `json:"subject" validate:"required,min=1,max=255"`
		Body    string `json:"body" validate:"required,min=1"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	template := models.EmailTemplate{
		UserID:  user.ID,
		Name:    input.Name,
		Subject: input.Subject,
		Body:    input.Body,
	}
	if err := tc.Templates.Create(c.UserContext(), &template); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"template": template})
}

func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		Name    *string `json:"name" validate:"omitempty,min=2,max=200"`
		Subject *string `json:"subject" validate:"omitempty,min=1,max=255"`
		Body    *string `json:"body" validate:"omitempty,min=1"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	fields := map[string]interface{}{}
	if input.Name != nil {
		fields["name"] = *input.Name
	}
	if input.Subject != nil {
		fields["subject"] = *input.Subject
	}
	if input.Body != nil {
		fields["body"] = *input.Body
	}
	if len(fields) == 0 {
		template, err := tc.Templates.GetTemplate(c.UserContext(), user.ID, id)
		if err != nil {
			return lookupError(c, err, "Template not found", "Failed to fetch template")
		}
		return c.JSON(fiber.Map{"template": template})
	}

	template, err := tc.Templates.Update(c.UserContext(), user.ID, id, fields)
	if err != nil {
		return lookupError(c, err, "Template not found", "Failed to update template")
	}
	return c.JSON(fiber.Map{"template": template})
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	if err := tc.Templates.Delete(c.UserContext(), user.ID, id); err != nil {
		return lookupError(c, err, "Template not found", "Failed to delete template")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
