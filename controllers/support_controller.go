package controller

import (
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"simpleautomate/utils"
)

// SupportController forwards contact form submissions to the team inbox
type SupportController struct {
	Mailer utils.Mailer
	Inbox  string
	Logger *logrus.Entry
}

func NewSupportController(mailer utils.Mailer, inbox string) *SupportController {
	return &SupportController{
		Mailer: mailer,
		Inbox:  inbox,
		Logger: utils.Component("support"),
	}
}

func (sc *SupportController) SubmitContactForm(c *fiber.Ctx) error {
	var input struct {
		Name    string `json:"name" validate:"required,min=2,max=200"`
		Email   string `json:"email" validate:"required,mailbox"`
		Message string `json:"message" validate:"required,min=10,max=5000"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	body := "<p><strong>Name:</strong> " + template.HTMLEscapeString(input.Name) + "</p>" +
		"<p><strong>Email:</strong> " + template.HTMLEscapeString(input.Email) + "</p>" +
		"<p>" + template.HTMLEscapeString(input.Message) + "</p>"

	err := sc.Mailer.Send(c.UserContext(), utils.Email{
		To:      sc.Inbox,
		ReplyTo: input.Email,
		Subject: "SimpleAutomate contact from " + input.Name,
		HTML:    utils.RenderEmailLayout("New contact submission", body),
	})
	if err != nil {
		utils.LogError("support_contact", err, map[string]interface{}{"email": input.Email})
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to send message", err)
	}
	return c.JSON(fiber.Map{"message": "Received"})
}
