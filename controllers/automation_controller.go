package controller

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"simpleautomate/automation"
	"simpleautomate/models"
	"simpleautomate/repository"
	"simpleautomate/utils"
)

const maxLogLimit = 200

type AutomationController struct {
	DB          *gorm.DB
	Automations *repository.AutomationRepository
	Contacts    *repository.ContactRepository
	Logger      *logrus.Entry
}

func NewAutomationController(db *gorm.DB) *AutomationController {
	return &AutomationController{
		DB:          db,
		Automations: repository.NewAutomationRepository(db),
		Contacts:    repository.NewContactRepository(db),
		Logger:      utils.Component("automations"),
	}
}

type stepInput struct {
	Type     models.StepType        `json:"type" validate:"required"`
	Position int                    `json:"position"`
	Config   map[string]interface{} `json:"config"`
}

// buildSteps orders the steps by their position field and checks their types
func buildSteps(inputs []stepInput) ([]models.AutomationStep, error) {
	ordered := slices.Clone(inputs)
	slices.SortStableFunc(ordered, func(a, b stepInput) int { return a.Position - b.Position })

	steps := make([]models.AutomationStep, 0, len(ordered))
	for _, in := range ordered {
		if !in.Type.Valid() {
			return nil, fmt.Errorf("unknown step type %q", in.Type)
		}
		cfg := in.Config
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		steps = append(steps, models.AutomationStep{Type: in.Type, Config: datatypes.JSONMap(cfg)})
	}
	return steps, nil
}

// checkStages reports the first MOVE_STAGE target outside the tenant's
// pipelines as a client error.
func (ac *AutomationController) checkStages(ctx context.Context, userID uint, steps []models.AutomationStep) (int, error) {
	for _, stageID := range automation.MoveStageTargets(steps) {
		owned, err := ac.Contacts.StageOwned(ctx, userID, stageID)
		if err != nil {
			return fiber.StatusInternalServerError, err
		}
		if !owned {
			return fiber.StatusBadRequest, fmt.Errorf("stage %d not found", stageID)
		}
	}
	return 0, nil
}

// GetAutomations lists automations with their steps and latest log entries
func (ac *AutomationController) GetAutomations(c *fiber.Ctx) error {
	user := currentUser(c)

	automations, err := ac.Automations.ListAutomations(c.UserContext(), user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch automations", err)
	}
	return c.JSON(fiber.Map{"automations": automations})
}

func (ac *AutomationController) GetAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	automation, err := ac.Automations.GetAutomation(c.UserContext(), user.ID, id)
	if err != nil {
		return lookupError(c, err, "Automation not found", "Failed to fetch automation")
	}
	return c.JSON(fiber.Map{"automation": automation})
}

func (ac *AutomationController) CreateAutomation(c *fiber.Ctx) error {
	user := currentUser(c)

	var input struct {
		Name          string                 `json:"name" validate:"required,min=2,max=200"`
		Active        *bool                  `json:"active"`
		TriggerType   models.TriggerType     `json:"triggerType" validate:"required"`
		TriggerConfig map[string]interface{} `json:"triggerConfig"`
		Steps         []stepInput            `json:"steps" validate:"required,min=1,dive"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}
	if !input.TriggerType.Valid() {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed",
			fmt.Errorf("unknown trigger type %q", input.TriggerType))
	}
	steps, err := buildSteps(input.Steps)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if code, err := ac.checkStages(c.UserContext(), user.ID, steps); err != nil {
		return utils.ErrorResponse(c, code, "Validation failed", err)
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	triggerConfig := input.TriggerConfig
	if triggerConfig == nil {
		triggerConfig = map[string]interface{}{}
	}

	automation := models.Automation{
		UserID:        user.ID,
		Name:          strings.TrimSpace(input.Name),
		Active:        active,
		TriggerType:   input.TriggerType,
		TriggerConfig: datatypes.JSONMap(triggerConfig),
		Steps:         steps,
	}
	if err := ac.Automations.CreateAutomation(c.UserContext(), &automation); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create automation", err)
	}

	ac.Logger.WithFields(logrus.Fields{
		"user_id":       user.ID,
		"automation_id": automation.ID,
		"trigger_type":  automation.TriggerType,
		"steps":         len(automation.Steps),
	}).Info("Automation created")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"automation": automation})
}

// UpdateAutomation changes name, active flag or trigger. Deactivating does
// not cancel entries already queued.
func (ac *AutomationController) UpdateAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		Name          *string                `json:"name" validate:"omitempty,min=2,max=200"`
		Active        *bool                  `json:"active"`
		TriggerType   *models.TriggerType    `json:"triggerType"`
		TriggerConfig map[string]interface{} `json:"triggerConfig"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	fields := map[string]interface{}{}
	if input.Name != nil {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Active != nil {
		fields["active"] = *input.Active
	}
	if input.TriggerType != nil {
		if !input.TriggerType.Valid() {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed",
				fmt.Errorf("unknown trigger type %q", *input.TriggerType))
		}
		fields["trigger_type"] = *input.TriggerType
	}
	if input.TriggerConfig != nil {
		fields["trigger_config"] = datatypes.JSONMap(input.TriggerConfig)
	}

	ctx := c.UserContext()
	if len(fields) == 0 {
		automation, err := ac.Automations.GetAutomation(ctx, user.ID, id)
		if err != nil {
			return lookupError(c, err, "Automation not found", "Failed to fetch automation")
		}
		return c.JSON(fiber.Map{"automation": automation})
	}

	automation, err := ac.Automations.UpdateAutomation(ctx, user.ID, id, fields)
	if err != nil {
		return lookupError(c, err, "Automation not found", "Failed to update automation")
	}
	return c.JSON(fiber.Map{"automation": automation})
}

// ReplaceSteps swaps the whole step list. Chains already in flight keep the
// step order they started with.
func (ac *AutomationController) ReplaceSteps(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		Steps []stepInput `json:"steps" validate:"dive"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}
	steps, err := buildSteps(input.Steps)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if code, err := ac.checkStages(c.UserContext(), user.ID, steps); err != nil {
		return utils.ErrorResponse(c, code, "Validation failed", err)
	}

	automation, err := ac.Automations.ReplaceSteps(c.UserContext(), user.ID, id, steps)
	if err != nil {
		return lookupError(c, err, "Automation not found", "Failed to update steps")
	}
	return c.JSON(fiber.Map{"automation": automation})
}

func (ac *AutomationController) DeleteAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	if err := ac.Automations.DeleteAutomation(c.UserContext(), user.ID, id); err != nil {
		return lookupError(c, err, "Automation not found", "Failed to delete automation")
	}

	ac.Logger.WithFields(logrus.Fields{
		"user_id":       user.ID,
		"automation_id": id,
	}).Info("Automation deleted")

	return c.SendStatus(fiber.StatusNoContent)
}

// GetLogs returns the automation's queue entries, newest first. ?limit=
// defaults to 50.
func (ac *AutomationController) GetLogs(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxLogLimit {
		limit = maxLogLimit
	}

	ctx := c.UserContext()
	if _, err := ac.Automations.GetAutomation(ctx, user.ID, id); err != nil {
		return lookupError(c, err, "Automation not found", "Failed to fetch automation")
	}
	logs, err := ac.Automations.ListLogs(ctx, user.ID, id, limit)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch logs", err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}
