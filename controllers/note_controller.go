package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

type NoteController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewNoteController(db *gorm.DB) *NoteController {
	return &NoteController{
		DB:     db,
		Logger: utils.Component("notes"),
	}
}

type noteInput struct {
	Content string `json:"content" validate:"required,min=1"`
}

func (nc *NoteController) findNote(c *fiber.Ctx, userID uint) (*models.Note, error) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return nil, err
	}
	var note models.Note
	if err := nc.DB.WithContext(c.UserContext()).Where("id = ? AND user_id = ?", id, userID).First(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Note not found")
		}
		return nil, err
	}
	return &note, nil
}

// GetContactNotes lists a contact's notes, newest first
func (nc *NoteController) GetContactNotes(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := utils.ParamID(c, "contactId")
	if err != nil {
		return err
	}

	var notes []models.Note
	if err := nc.DB.WithContext(c.UserContext()).
		Where("contact_id = ? AND user_id = ?", contactID, user.ID).
		Order("created_at DESC, id DESC").
		Find(&notes).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notes", err)
	}
	return c.JSON(fiber.Map{"notes": notes})
}

// CreateNote stores the note together with its first revision
func (nc *NoteController) CreateNote(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := utils.ParamID(c, "contactId")
	if err != nil {
		return err
	}

	var input noteInput
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	var note models.Note
	err = nc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var contact models.Contact
		if err := tx.Where("id = ? AND user_id = ?", contactID, user.ID).First(&contact).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Contact not found")
			}
			return err
		}

		note = models.Note{UserID: user.ID, ContactID: contact.ID, Content: input.Content}
		if err := tx.Create(&note).Error; err != nil {
			return err
		}
		return tx.Create(&models.NoteRevision{NoteID: note.ID, UserID: user.ID, Content: input.Content}).Error
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return err
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create note", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"note": note})
}

// UpdateNote rewrites the content and appends a revision
func (nc *NoteController) UpdateNote(c *fiber.Ctx) error {
	user := currentUser(c)
	note, err := nc.findNote(c, user.ID)
	if err != nil {
		return err
	}

	var input noteInput
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	err = nc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(note).Update("content", input.Content).Error; err != nil {
			return err
		}
		return tx.Create(&models.NoteRevision{NoteID: note.ID, UserID: user.ID, Content: input.Content}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update note", err)
	}
	note.Content = input.Content
	return c.JSON(fiber.Map{"note": note})
}

// GetRevisions returns the note's content history, newest first
func (nc *NoteController) GetRevisions(c *fiber.Ctx) error {
	user := currentUser(c)
	note, err := nc.findNote(c, user.ID)
	if err != nil {
		return err
	}

	var revisions []models.NoteRevision
	if err := nc.DB.WithContext(c.UserContext()).
		Where("note_id = ?", note.ID).
		Order("created_at DESC, id DESC").
		Find(&revisions).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch revisions", err)
	}
	return c.JSON(fiber.Map{"revisions": revisions})
}

func (nc *NoteController) DeleteNote(c *fiber.Ctx) error {
	user := currentUser(c)
	note, err := nc.findNote(c, user.ID)
	if err != nil {
		return err
	}

	if err := nc.DB.WithContext(c.UserContext()).Delete(note).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete note", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
