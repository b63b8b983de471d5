package controller

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/automation"
	"simpleautomate/models"
	"simpleautomate/repository"
	"simpleautomate/utils"
)

type ContactController struct {
	DB        *gorm.DB
	Contacts  *repository.ContactRepository
	Pipelines *repository.PipelineRepository
	Triggers  Triggerer
	Logger    *logrus.Entry
}

func NewContactController(db *gorm.DB, triggers Triggerer) *ContactController {
	return &ContactController{
		DB:        db,
		Contacts:  repository.NewContactRepository(db),
		Pipelines: repository.NewPipelineRepository(db),
		Triggers:  triggers,
		Logger:    utils.Component("contacts"),
	}
}

// fire runs the automations for a contact event. Failures are logged; the
// contact change that caused the event has already been stored.
func (cc *ContactController) fire(c *fiber.Ctx, ev automation.TriggerEvent) {
	if cc.Triggers == nil {
		return
	}
	if err := cc.Triggers.Trigger(c.UserContext(), ev); err != nil {
		utils.LogError("automation_trigger", err, map[string]interface{}{
			"user_id":      ev.UserID,
			"contact_id":   ev.ContactID,
			"trigger_type": string(ev.Type),
		})
	}
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeEmail(s *string) *string {
	email := optionalString(s)
	if email == nil {
		return nil
	}
	lower := strings.ToLower(*email)
	return &lower
}

// GetContacts lists the tenant's contacts, newest first, filtered by
// ?search= (name, email or phone) and ?tag=
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := currentUser(c)

	contacts, err := cc.Contacts.List(c.UserContext(), user.ID, repository.ContactFilter{
		Search: c.Query("search"),
		Tag:    c.Query("tag"),
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}
	return c.JSON(fiber.Map{"contacts": contacts})
}

func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	contact, err := cc.Contacts.GetContact(c.UserContext(), user.ID, id)
	if err != nil {
		return lookupError(c, err, "Contact not found", "Failed to fetch contact")
	}
	return c.JSON(fiber.Map{"contact": contact})
}

// CreateContact stores a contact in the given stage, or the first stage of
// the default pipeline, and fires NEW_CONTACT.
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := currentUser(c)

	var input struct {
		Name    string   `json:"name" validate:"required,min=1,max=200"`
		Email   *string  `json:"email" validate:"omitempty,mailbox"`
		Phone   *string  `json:"phone" validate:"omitempty,max=50"`
		Tags    []string `json:"tags"`
		StageID uint     `json:"stageId"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	ctx := c.UserContext()
	stageID := input.StageID
	if stageID != 0 {
		owned, err := cc.Contacts.StageOwned(ctx, user.ID, stageID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check stage", err)
		}
		if !owned {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Stage not found", nil)
		}
	} else {
		pipeline, err := cc.Pipelines.EnsureDefaultPipeline(ctx, user.ID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load pipeline", err)
		}
		if len(pipeline.Stages) > 0 {
			stageID = pipeline.Stages[0].ID
		}
	}

	contact := models.Contact{
		UserID: user.ID,
		Name:   strings.TrimSpace(input.Name),
		Email:  normalizeEmail(input.Email),
		Phone:  optionalString(input.Phone),
	}
	if err := cc.Contacts.Create(ctx, &contact, input.Tags, stageID, time.Now()); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	cc.Logger.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": contact.ID,
	}).Info("Contact created")

	cc.fire(c, automation.TriggerEvent{
		UserID:    user.ID,
		Type:      models.TriggerNewContact,
		ContactID: contact.ID,
	})

	created, err := cc.Contacts.GetContact(ctx, user.ID, contact.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"contact": created})
}

func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		Name  *string  `json:"name" validate:"omitempty,min=1,max=200"`
		Email *string  `json:"email" validate:"omitempty,mailbox"`
		Phone *string  `json:"phone" validate:"omitempty,max=50"`
		Tags  []string `json:"tags"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	fields := map[string]interface{}{}
	if input.Name != nil {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		fields["email"] = normalizeEmail(input.Email)
	}
	if input.Phone != nil {
		fields["phone"] = optionalString(input.Phone)
	}

	contact, err := cc.Contacts.Update(c.UserContext(), user.ID, id, fields, input.Tags)
	if err != nil {
		return lookupError(c, err, "Contact not found", "Failed to update contact")
	}
	return c.JSON(fiber.Map{"contact": contact})
}

func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	if err := cc.Contacts.Delete(c.UserContext(), user.ID, id); err != nil {
		return lookupError(c, err, "Contact not found", "Failed to delete contact")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ChangeStage appends a stage assignment to the contact's history and fires
// STAGE_CHANGE for the entered stage.
func (cc *ContactController) ChangeStage(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		StageID uint `json:"stageId" validate:"required"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	ctx := c.UserContext()
	if _, err := cc.Contacts.GetContact(ctx, user.ID, id); err != nil {
		return lookupError(c, err, "Contact not found", "Failed to fetch contact")
	}
	owned, err := cc.Contacts.StageOwned(ctx, user.ID, input.StageID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check stage", err)
	}
	if !owned {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Stage not found", nil)
	}

	if err := cc.Contacts.AssignStage(ctx, id, input.StageID, time.Now()); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update stage", err)
	}

	cc.fire(c, automation.TriggerEvent{
		UserID:    user.ID,
		Type:      models.TriggerStageChange,
		ContactID: id,
		StageID:   input.StageID,
	})

	return c.JSON(fiber.Map{"message": "Stage updated"})
}
