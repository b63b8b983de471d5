package services

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// ReminderWindow is how far ahead of its due date a task is announced
const ReminderWindow = 24 * time.Hour

const reminderConcurrency = 4

// TaskReminder emails users about open tasks that are due soon
type TaskReminder struct {
	DB       *gorm.DB
	Mailer   utils.Mailer
	Logger   *logrus.Entry
	Location *time.Location
	Now      func() time.Time
}

func NewTaskReminder(db *gorm.DB, mailer utils.Mailer) *TaskReminder {
	return &TaskReminder{
		DB:       db,
		Mailer:   mailer,
		Logger:   utils.Component("task_reminders"),
		Location: time.Local,
		Now:      time.Now,
	}
}

// SendDueReminders notifies the owner of every incomplete task due within
// ReminderWindow that has not been announced yet, and returns how many
// reminders went out.
func (r *TaskReminder) SendDueReminders(ctx context.Context) (int, error) {
	var tasks []models.Task
	err := r.DB.WithContext(ctx).
		Preload("User").
		Preload("Contact").
		Where("completed = ? AND notification_sent = ? AND due_date <= ?", false, false, r.Now().Add(ReminderWindow)).
		Order("due_date ASC").
		Find(&tasks).Error
	if err != nil {
		return 0, err
	}

	var (
		mu   sync.Mutex
		sent int
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(reminderConcurrency)
	for i := range tasks {
		task := tasks[i]
		g.Go(func() error {
			ok, err := r.remind(ctx, &task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("task %d: %w", task.ID, err))
			} else if ok {
				sent++
			}
			return nil
		})
	}
	_ = g.Wait()
	return sent, errors.Join(errs...)
}

// remind marks the task notified before sending so overlapping sweeps
// cannot both announce it, and rolls the flag back if delivery fails.
func (r *TaskReminder) remind(ctx context.Context, task *models.Task) (bool, error) {
	if task.User == nil {
		return false, nil
	}

	res := r.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND notification_sent = ?", task.ID, false).
		Update("notification_sent", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}

	email := utils.Email{
		To:      task.User.Email,
		Subject: "Task due soon: " + task.Title,
		HTML:    utils.RenderEmailLayout("Task Reminder", r.reminderBody(task)),
	}
	if err := r.Mailer.Send(ctx, email); err != nil {
		rollback := r.DB.WithContext(context.WithoutCancel(ctx)).Model(&models.Task{}).
			Where("id = ?", task.ID).
			Update("notification_sent", false)
		if rollback.Error != nil {
			r.Logger.WithError(rollback.Error).WithField("task_id", task.ID).Error("Failed to reset reminder flag")
		}
		return false, err
	}

	r.Logger.WithFields(logrus.Fields{"task_id": task.ID, "user_id": task.UserID}).Debug("Task reminder sent")
	return true, nil
}

func (r *TaskReminder) reminderBody(task *models.Task) string {
	body := "Task <strong>" + template.HTMLEscapeString(task.Title) + "</strong>"
	if task.Contact != nil {
		body += " for " + template.HTMLEscapeString(task.Contact.Name)
	}
	due := "soon"
	if task.DueDate != nil {
		due = task.DueDate.In(r.Location).Format("Mon 2 Jan 2006 15:04 MST")
	}
	return body + " is due " + due + "."
}
