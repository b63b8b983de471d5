package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

type TaskController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewTaskController(db *gorm.DB) *TaskController {
	return &TaskController{
		DB:     db,
		Logger: utils.Component("tasks"),
	}
}

// parseDueDate accepts RFC 3339 timestamps and plain dates
func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("dueDate must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}

func (tc *TaskController) findTask(c *fiber.Ctx, userID uint) (*models.Task, error) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := tc.DB.WithContext(c.UserContext()).Where("id = ? AND user_id = ?", id, userID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Task not found")
		}
		return nil, err
	}
	return &task, nil
}

// GetTasks lists tasks by due date. ?status=completed|pending filters.
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	user := currentUser(c)

	query := tc.DB.WithContext(c.UserContext()).
		Preload("Contact", func(db *gorm.DB) *gorm.DB { return db.Unscoped().Select("id", "name") }).
		Where("user_id = ?", user.ID)

	switch strings.ToLower(c.Query("status")) {
	case "completed":
		query = query.Where("completed = ?", true)
	case "pending":
		query = query.Where("completed = ?", false)
	}

	var tasks []models.Task
	if err := query.Order("due_date ASC, id ASC").Find(&tasks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tasks", err)
	}
	return c.JSON(fiber.Map{"tasks": tasks})
}

func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	user := currentUser(c)

	var input struct {
		Title     string `json:"title" validate:"required,min=2,max=255"`
		ContactID *uint  `json:"contactId"`
		DueDate   string `json:"dueDate"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	dueDate, err := parseDueDate(input.DueDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.ContactID != nil {
		var count int64
		if err := tc.DB.WithContext(c.UserContext()).Model(&models.Contact{}).
			Where("id = ? AND user_id = ?", *input.ContactID, user.ID).
			Count(&count).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check contact", err)
		}
		if count == 0 {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
		}
	}

	task := models.Task{
		UserID:    user.ID,
		ContactID: input.ContactID,
		Title:     strings.TrimSpace(input.Title),
		DueDate:   dueDate,
	}
	if err := tc.DB.WithContext(c.UserContext()).Create(&task).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create task", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"task": task})
}

// UpdateTask changes title, due date or completion. A new due date re-arms
// the reminder.
func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	user := currentUser(c)
	task, err := tc.findTask(c, user.ID)
	if err != nil {
		return err
	}

	var input struct {
		Title     *string `json:"title" validate:"omitempty,min=2,max=255"`
		DueDate   *string `json:"dueDate"`
		Completed *bool   `json:"completed"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	fields := map[string]interface{}{}
	if input.Title != nil {
		fields["title"] = strings.TrimSpace(*input.Title)
	}
	if input.DueDate != nil {
		dueDate, err := parseDueDate(*input.DueDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
		}
		if dueDate != nil {
			fields["due_date"] = *dueDate
			fields["notification_sent"] = false
		}
	}
	if input.Completed != nil {
		fields["completed"] = *input.Completed
	}

	if len(fields) > 0 {
		if err := tc.DB.WithContext(c.UserContext()).Model(task).Updates(fields).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update task", err)
		}
		if err := tc.DB.WithContext(c.UserContext()).First(task, task.ID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch task", err)
		}
	}
	return c.JSON(fiber.Map{"task": task})
}

func (tc *TaskController) CompleteTask(c *fiber.Ctx) error {
	user := currentUser(c)
	task, err := tc.findTask(c, user.ID)
	if err != nil {
		return err
	}

	if err := tc.DB.WithContext(c.UserContext()).Model(task).Update("completed", true).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to complete task", err)
	}
	task.Completed = true
	return c.JSON(fiber.Map{"task": task})
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	user := currentUser(c)
	task, err := tc.findTask(c, user.ID)
	if err != nil {
		return err
	}

	if err := tc.DB.WithContext(c.UserContext()).Delete(task).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete task", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
