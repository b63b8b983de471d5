package utils

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/subscription"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ConstructStripeEvent verifies the Stripe-Signature header of a webhook request
func ConstructStripeEvent(c *fiber.Ctx, secret string) (stripe.Event, error) {
	payload := c.Body()

	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return stripe.Event{}, fiber.NewError(fiber.StatusBadRequest, "Missing Stripe-Signature header")
	}

	// Verify the webhook signature with tolerance for clock drift
	event, err := webhook.ConstructEventWithTolerance(payload, signature, secret, 5*time.Minute)
	if err != nil {
		Component("stripe").WithError(err).Warn("Failed to verify webhook signature")
		return stripe.Event{}, fiber.NewError(fiber.StatusBadRequest, "Invalid webhook signature")
	}

	LogEvent("stripe_webhook_verified", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
	return event, nil
}

// GetStripeSubscription fetches the current state of a subscription
func GetStripeSubscription(subscriptionID string) (*stripe.Subscription, error) {
	if subscriptionID == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Subscription ID is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		LogError("stripe_subscription_fetch", err, map[string]interface{}{
			"subscription_id": subscriptionID,
		})
		return nil, err
	}
	return sub, nil
}
