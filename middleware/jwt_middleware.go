package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/utils"
)

// AccessToken extracts the bearer token from the Authorization header, the
// access_token cookie or, for websocket upgrades, the token query parameter.
func AccessToken(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			return "", fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization format")
		}
		return token, nil
	}
	if token := strings.TrimSpace(c.Cookies("access_token")); token != "" {
		return token, nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
}

// Protected rejects requests without a valid access token and stores the
// authenticated user in c.Locals("user") and c.Locals("userID").
func Protected(secret string, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := AccessToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		claims, err := utils.ParseAccessToken(secret, token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User not found",
			})
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)

		return c.Next()
	}
}

// RequireSubscription answers 402 unless the authenticated user's
// subscription is active, trialing or past due. It must run after Protected.
func RequireSubscription() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*models.User)
		if !ok || !models.HasActiveSubscription(user.SubscriptionStatus) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "Your subscription is inactive. Please update billing information.",
			})
		}
		return c.Next()
	}
}

// CurrentUser returns the user stored by Protected
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
