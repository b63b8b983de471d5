package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewDashboardController(db *gorm.DB) *DashboardController {
	return &DashboardController{
		DB:     db,
		Logger: utils.Component("dashboard"),
	}
}

type DashboardStats struct {
	ContactCount int64 `json:"contactCount"`
	OpenTasks    int64 `json:"openTasks"`
	// Wins counts every assignment of a tenant contact to a stage named "Won"
	Wins int64 `json:"wins"`
}

// GetDashboardStats returns the summary cards of the dashboard
func (dc *DashboardController) GetDashboardStats(c *fiber.Ctx) error {
	user := currentUser(c)
	db := dc.DB.WithContext(c.UserContext())

	var stats DashboardStats
	g := new(errgroup.Group)
	g.Go(func() error {
		return db.Model(&models.Contact{}).Where("user_id = ?", user.ID).Count(&stats.ContactCount).Error
	})
	g.Go(func() error {
		return db.Model(&models.Task{}).Where("user_id = ? AND completed = ?", user.ID, false).Count(&stats.OpenTasks).Error
	})
	g.Go(func() error {
		return db.Model(&models.ContactStage{}).
			Joins("JOIN contacts ON contacts.id = contact_stages.contact_id AND contacts.deleted_at IS NULL").
			Joins("JOIN stages ON stages.id = contact_stages.stage_id").
			Where("contacts.user_id = ? AND stages.name = ?", user.ID, models.WonStageName).
			Count(&stats.Wins).Error
	})
	if err := g.Wait(); err != nil {
		dc.Logger.WithError(err).WithField("user_id", user.ID).Error("Failed to compute dashboard stats")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch dashboard stats", err)
	}

	return c.JSON(fiber.Map{"stats": stats})
}
