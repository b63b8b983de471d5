package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"simpleautomate/models"
	"simpleautomate/services"
	"simpleautomate/utils"
)

const refreshCookieName = "refreshToken"

// AuthConfig holds the token settings of the auth endpoints
type AuthConfig struct {
	AccessSecret string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	// SecureCookies switches the refresh cookie to Secure + SameSite=None for
	// cross-site frontends
	SecureCookies bool
}

type AuthController struct {
	DB            *gorm.DB
	Accounts      *services.AccountService
	Sessions      *services.SessionService
	Subscriptions *services.SubscriptionService
	Config        AuthConfig
	Logger        *logrus.Entry
}

func NewAuthController(db *gorm.DB, accounts *services.AccountService, sessions *services.SessionService, subscriptions *services.SubscriptionService, cfg AuthConfig) *AuthController {
	return &AuthController{
		DB:            db,
		Accounts:      accounts,
		Sessions:      sessions,
		Subscriptions: subscriptions,
		Config:        cfg,
		Logger:        utils.Component("auth"),
	}
}

type credentials struct {
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required"`
}

func (ac *AuthController) setRefreshCookie(c *fiber.Ctx, token string, maxAge time.Duration) {
	sameSite := fiber.CookieSameSiteLaxMode
	if ac.Config.SecureCookies {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HTTPOnly: true,
		Secure:   ac.Config.SecureCookies,
		SameSite: sameSite,
	})
}

// issueTokens opens a refresh session, sets its cookie and returns a fresh
// access token
func (ac *AuthController) issueTokens(c *fiber.Ctx, user *models.User) (string, error) {
	accessToken, err := utils.GenerateAccessToken(ac.Config.AccessSecret, ac.Config.AccessTTL, user.ID, user.Email, user.SubscriptionStatus)
	if err != nil {
		return "", err
	}
	refreshToken, _, err := ac.Sessions.Create(c.UserContext(), user.ID)
	if err != nil {
		return "", err
	}
	ac.setRefreshCookie(c, refreshToken, ac.Config.RefreshTTL)
	return accessToken, nil
}

// refreshTokenFromRequest reads the cookie, falling back to the JSON body
func refreshTokenFromRequest(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Cookies(refreshCookieName)); token != "" {
		return token
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&body)
	}
	return strings.TrimSpace(body.RefreshToken)
}

// Signup creates a trialing account and signs it in
func (ac *AuthController) Signup(c *fiber.Ctx) error {
	var input struct {
		Email    string `json:"email" validate:"required,mailbox"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	user, err := ac.Accounts.Signup(c.UserContext(), input.Email, input.Password)
	if errors.Is(err, services.ErrAccountExists) {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Account already exists", nil)
	}
	if err != nil {
		utils.LogError("signup", err, map[string]interface{}{"email": input.Email})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create account", err)
	}

	accessToken, err := ac.issueTokens(c, user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", err)
	}

	utils.LogEvent("user_signed_up", map[string]interface{}{"user_id": user.ID})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":        user,
		"accessToken": accessToken,
	})
}

// Login re-syncs the subscription before issuing tokens so the access
// token carries the current status
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input credentials
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	ctx := c.UserContext()
	user, err := ac.Accounts.Authenticate(ctx, input.Email, input.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		ac.Logger.WithField("email", strings.ToLower(input.Email)).Info("Failed login attempt")
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sign in", err)
	}

	user, err = ac.Subscriptions.Refresh(ctx, user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sync subscription", err)
	}

	accessToken, err := ac.issueTokens(c, user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", err)
	}
	return c.JSON(fiber.Map{
		"user":        user,
		"accessToken": accessToken,
	})
}

// Refresh rotates the refresh token and returns a new access token
func (ac *AuthController) Refresh(c *fiber.Ctx) error {
	token := refreshTokenFromRequest(c)
	if token == "" {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Missing refresh token", nil)
	}

	ctx := c.UserContext()
	refreshToken, session, err := ac.Sessions.Rotate(ctx, token)
	if errors.Is(err, services.ErrInvalidRefreshToken) {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid refresh token", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to refresh session", err)
	}

	var user models.User
	if err := ac.DB.WithContext(ctx).First(&user, session.UserID).Error; err != nil {
		_ = ac.Sessions.Revoke(ctx, session.ID)
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Account no longer exists", nil)
	}

	synced, err := ac.Subscriptions.Refresh(ctx, &user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sync subscription", err)
	}

	accessToken, err := utils.GenerateAccessToken(ac.Config.AccessSecret, ac.Config.AccessTTL, synced.ID, synced.Email, synced.SubscriptionStatus)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", err)
	}
	ac.setRefreshCookie(c, refreshToken, ac.Config.RefreshTTL)

	return c.JSON(fiber.Map{"accessToken": accessToken})
}

// Logout revokes the refresh session, if any, and clears the cookie
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	if token := refreshTokenFromRequest(c); token != "" {
		if err := ac.Sessions.RevokeToken(c.UserContext(), token); err != nil {
			ac.Logger.WithError(err).Warn("Failed to revoke session")
		}
	}
	ac.setRefreshCookie(c, "", -time.Hour)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RequestVerification answers the same way whether or not the account exists
func (ac *AuthController) RequestVerification(c *fiber.Ctx) error {
	var input struct {
		Email string `json:"email" validate:"required,mailbox"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	if err := ac.Accounts.RequestVerification(c.UserContext(), input.Email); err != nil {
		utils.LogError("verification_request", err, nil)
	}
	return c.JSON(fiber.Map{"message": "If the account exists, an email was sent."})
}

func (ac *AuthController) VerifyEmail(c *fiber.Ctx) error {
	var input struct {
		Token string `json:"token" validate:"required,min=10"`
	}
	if msg, err := bindBody(c, &input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, msg, err)
	}

	err := ac.Accounts.VerifyEmail(c.UserContext(), input.Token)
	if errors.Is(err, services.ErrInvalidVerification) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid verification token", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to verify email", err)
	}
	return c.JSON(fiber.Map{"message": "Email verified"})
}

// GetCurrentUser returns the authenticated user
func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user": currentUser(c)})
}
