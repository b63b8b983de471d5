package controller

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"simpleautomate/models"
)

func pipelineApp(db *gorm.DB, user *models.User) *fiber.App {
	app := newTestApp(user)
	pc := NewPipelineController(db)
	app.Get("/pipelines", pc.GetPipelines)
	app.Get("/pipelines/board", pc.GetBoard)
	app.Post("/pipelines", pc.CreatePipeline)
	app.Post("/pipelines/:id/stages", pc.AddStage)
	app.Put("/pipelines/:id/stages/reorder", pc.ReorderStages)
	return app
}

func TestPipelineStages(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	app := pipelineApp(db, user)

	status, body := call(t, app, "POST", "/pipelines", map[string]interface{}{"name": "Sales", "stages": []string{"Lead", "Won"}})
	require.Equal(t, fiber.StatusCreated, status, body)
	pipelineID := uint(body["pipeline"].(map[string]interface{})["ID"].(float64))

	status, body = call(t, app, "POST", fmt.Sprintf("/pipelines/%d/stages", pipelineID), map[string]interface{}{"name": "Lost"})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, float64(2), body["stage"].(map[string]interface{})["position"])

	var stages []models.Stage
	require.NoError(t, db.Where("pipeline_id = ?", pipelineID).Order("position").Find(&stages).Error)
	require.Len(t, stages, 3)

	reversed := []uint{stages[2].ID, stages[1].ID, stages[0].ID}
	status, body = call(t, app, "PUT", fmt.Sprintf("/pipelines/%d/stages/reorder", pipelineID), map[string]interface{}{"stageOrder": reversed})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "Reordered", body["message"])

	require.NoError(t, db.Where("pipeline_id = ?", pipelineID).Order("position").Find(&stages).Error)
	assert.Equal(t, "Lost", stages[0].Name)

	status, _ = call(t, app, "PUT", fmt.Sprintf("/pipelines/%d/stages/reorder", pipelineID), map[string]interface{}{"stageOrder": reversed[:2]})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = call(t, app, "POST", "/pipelines/999/stages", map[string]interface{}{"name": "Lost"})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Pipeline not found", body["error"])
}

func TestBoardGroupsByCurrentStage(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	contacts := contactApp(db, user, nil)
	status, _ := call(t, contacts, "POST", "/contacts", map[string]interface{}{"name": "Ada"})
	require.Equal(t, fiber.StatusCreated, status)

	app := pipelineApp(db, user)
	status, body := call(t, app, "GET", "/pipelines/board", nil)
	require.Equal(t, fiber.StatusOK, status, body)

	board := body["board"].([]interface{})
	require.Len(t, board, 1)
	columns := board[0].(map[string]interface{})["stages"].([]interface{})
	require.Len(t, columns, len(models.DefaultStageNames))
	first := columns[0].(map[string]interface{})
	assert.Len(t, first["contacts"], 1)
}
