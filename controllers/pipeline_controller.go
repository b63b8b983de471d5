package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/repository"
	"simpleautomate/utils"
)

type PipelineController struct {
	DB        *gorm.DB
	Pipelines *repository.PipelineRepository
	Logger    *logrus.Entry
}

func NewPipelineController(db *gorm.DB) *PipelineController {
	return &PipelineController{
		DB:        db,
		Pipelines: repository.NewPipelineRepository(db),
		Logger:    utils.Component("pipelines"),
	}
}

// GetPipelines lists the tenant's pipelines, creating the default one first
// when there is none
func (pc *PipelineController) GetPipelines(c *fiber.Ctx) error {
	user := currentUser(c)

	pipelines, err := pc.Pipelines.List(c.UserContext(), user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch pipelines", err)
	}
	return c.JSON(fiber.Map{"pipelines": pipelines})
}

type boardPipeline struct {
	ID     uint                     `json:"id"`
	Name   string                   `json:"name"`
	Stages []repository.BoardColumn `json:"stages"`
}

// GetBoard groups the tenant's contacts by current stage for every pipeline
func (pc *PipelineController) GetBoard(c *fiber.Ctx) error {
	user := currentUser(c)
	ctx := c.UserContext()

	pipelines, err := pc.Pipelines.List(ctx, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch pipelines", err)
	}

	board := make([]boardPipeline, 0, len(pipelines))
	for _, p := range pipelines {
		columns, err := pc.Pipelines.Board(ctx, user.ID, p.ID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to build board", err)
		}
		board = append(board, boardPipeline{ID: p.ID, Name: p.Name, Stages: columns})
	}
	return c.JSON(fiber.Map{"board": board})
}

func (pc *PipelineController) CreatePipeline(c *fiber.Ctx) error {
	user := currentUser(c)

	var input struct {
		Name   string   `json:"name" validate:"required,min=2,max=100"`
		Stages []string `json:"stages" validate:"omitempty,min=1,dive,required,max=100"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	stages := input.Stages
	if len(stages) == 0 {
		stages = models.DefaultStageNames
	}

	pipeline, err := pc.Pipelines.Create(c.UserContext(), user.ID, strings.TrimSpace(input.Name), stages)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create pipeline", err)
	}

	pc.Logger.WithFields(logrus.Fields{
		"user_id":     user.ID,
		"pipeline_id": pipeline.ID,
	}).Info("Pipeline created")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"pipeline": pipeline})
}

// AddStage appends a stage to the end of a pipeline
func (pc *PipelineController) AddStage(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		Name string `json:"name" validate:"required,min=1,max=100"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	stage, err := pc.Pipelines.AddStage(c.UserContext(), user.ID, id, strings.TrimSpace(input.Name))
	if err != nil {
		return lookupError(c, err, "Pipeline not found", "Failed to add stage")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"stage": stage})
}

// ReorderStages takes the full list of the pipeline's stage ids in their new
// order
func (pc *PipelineController) ReorderStages(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return err
	}

	var input struct {
		StageOrder []uint `json:"stageOrder" validate:"required,min=1"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	pipeline, err := pc.Pipelines.ReorderStages(c.UserContext(), user.ID, id, input.StageOrder)
	if errors.Is(err, repository.ErrStageMismatch) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Stage order must list every stage of the pipeline once", nil)
	}
	if err != nil {
		return lookupError(c, err, "Pipeline not found", "Failed to reorder stages")
	}
	return c.JSON(fiber.Map{"message": "Reordered", "pipeline": pipeline})
}
