package controller

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"

	"simpleautomate/config"
	"simpleautomate/services"
	"simpleautomate/utils"
)

func InitStripe() {
	stripe.Key = config.AppConfig.StripeSecretKey
}

type BillingController struct {
	Subscriptions *services.SubscriptionService
	WebhookSecret string
	Logger        *logrus.Entry
}

func NewBillingController(subscriptions *services.SubscriptionService, webhookSecret string) *BillingController {
	return &BillingController{
		Subscriptions: subscriptions,
		WebhookSecret: webhookSecret,
		Logger:        utils.Component("billing"),
	}
}

// HandleStripeWebhook keeps user subscription state in step with Stripe
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	if bc.WebhookSecret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Webhook secret missing",
		})
	}

	event, err := utils.ConstructStripeEvent(c, bc.WebhookSecret)
	if err != nil {
		return err
	}

	log := bc.Logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	var sub *stripe.Subscription
	deleted := false

	switch string(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var s stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			log.WithError(err).Error("Failed to parse subscription")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid webhook payload",
			})
		}
		sub = &s
		deleted = event.Type == "customer.subscription.deleted"

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.WithError(err).Error("Failed to parse checkout session")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid webhook payload",
			})
		}
		if session.Subscription != nil {
			sub, err = bc.fetch(session.Subscription.ID)
			if err != nil {
				return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to fetch subscription", err)
			}
		}

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			log.WithError(err).Error("Failed to parse invoice")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid webhook payload",
			})
		}
		if invoice.Subscription != nil {
			sub, err = bc.fetch(invoice.Subscription.ID)
			if err != nil {
				return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to fetch subscription", err)
			}
		}

	default:
		log.Debug("Ignoring webhook event")
	}

	if sub != nil {
		updated, err := bc.Subscriptions.ApplyStripeSubscription(c.UserContext(), sub, deleted)
		if err != nil {
			utils.LogError("stripe_webhook_apply", err, map[string]interface{}{"event_id": event.ID})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscription", err)
		}
		log.WithFields(logrus.Fields{
			"subscription_id": sub.ID,
			"status":          sub.Status,
			"updated":         updated,
		}).Info("Subscription webhook applied")
	}

	return c.JSON(fiber.Map{"received": true})
}

func (bc *BillingController) fetch(id string) (*stripe.Subscription, error) {
	if bc.Subscriptions.FetchSubscription == nil || id == "" {
		return nil, nil
	}
	return bc.Subscriptions.FetchSubscription(id)
}
