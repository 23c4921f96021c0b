package handlers

import (
	"context"
	"log"
	"time"

	"accounts/internal/common"
	"accounts/internal/middleware"
	"accounts/internal/models"
	"accounts/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HandlerOptions configures AccountHandler.
type HandlerOptions struct {
	CookieSecure   bool
	RequestTimeout time.Duration
	TokenExtractor middleware.TokenExtractor
}

// AccountHandler handles HTTP requests for user accounts.
type AccountHandler struct {
	service        *services.AccountService
	extract        middleware.TokenExtractor
	cookieSecure   bool
	requestTimeout time.Duration
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(service *services.AccountService, opts HandlerOptions) *AccountHandler {
	extract := opts.TokenExtractor
	if extract == nil {
		extract = middleware.FromCookie(middleware.SessionCookie)
	}
	return &AccountHandler{
		service:        service,
		extract:        extract,
		cookieSecure:   opts.CookieSecure,
		requestTimeout: opts.RequestTimeout,
	}
}

// RegisterRoutes registers the account routes. authRequired guards the
// routes that need a session.
func (h *AccountHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	users := router.Group("/users")
	users.Post("/register", h.HandleRegister)
	users.Post("/login", h.HandleLogin)
	users.Get("/logout", h.HandleLogout)
	users.Get("/loggedin", h.HandleLoginStatus)
	users.Post("/forgotpassword", h.HandleForgotPassword)
	users.Put("/resetpassword/:resetToken", h.HandleResetPassword)

	users.Get("/getuser", authRequired, h.HandleGetUser)
	users.Patch("/updateuser", authRequired, h.HandleUpdateUser)
	users.Patch("/changepassword", authRequired, h.HandleChangePassword)
}

// HandleRegister creates an account and starts a session.
func (h *AccountHandler) HandleRegister(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.service.Register(ctx, req)
	if err != nil {
		return err
	}

	h.setSessionCookie(c, result.Token, result.ExpiresAt)
	return c.Status(fiber.StatusCreated).JSON(sessionResponse(result))
}

// HandleLogin checks credentials and starts a session.
func (h *AccountHandler) HandleLogin(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.service.Login(ctx, req)
	if err != nil {
		return err
	}

	h.setSessionCookie(c, result.Token, result.ExpiresAt)
	return c.Status(fiber.StatusOK).JSON(sessionResponse(result))
}

// HandleLogout expires the session cookie.
func (h *AccountHandler) HandleLogout(c *fiber.Ctx) error {
	h.setSessionCookie(c, "", time.Unix(0, 0))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Successfully Logged Out",
	})
}

// HandleLoginStatus answers with a bare boolean.
func (h *AccountHandler) HandleLoginStatus(c *fiber.Ctx) error {
	return c.JSON(h.service.LoginStatus(h.extract(c)))
}

// HandleGetUser returns the profile of the logged in user.
func (h *AccountHandler) HandleGetUser(c *fiber.Ctx) error {
	current, err := currentUser(c)
	if err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	user, err := h.service.GetProfile(ctx, current.ID)
	if err != nil {
		return err
	}
	return c.JSON(user.Profile())
}

// HandleUpdateUser changes name, phone, bio or photo of the logged in user.
func (h *AccountHandler) HandleUpdateUser(c *fiber.Ctx) error {
	current, err := currentUser(c)
	if err != nil {
		return err
	}

	var req services.UpdateProfileInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	user, err := h.service.UpdateProfile(ctx, current.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(user.Profile())
}

// HandleChangePassword changes the password of the logged in user.
func (h *AccountHandler) HandleChangePassword(c *fiber.Ctx) error {
	current, err := currentUser(c)
	if err != nil {
		return err
	}

	var req services.ChangePasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.service.ChangePassword(ctx, current.ID, req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Password change successful",
	})
}

// HandleForgotPassword emails a reset link.
func (h *AccountHandler) HandleForgotPassword(c *fiber.Ctx) error {
	var req services.ForgotPasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.service.ForgotPassword(ctx, req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Reset Email Sent",
	})
}

// HandleResetPassword sets a new password using the token from the reset link.
func (h *AccountHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req services.ResetPasswordInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.service.ResetPassword(ctx, c.Params("resetToken"), req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Password Reset Successful, Please Login",
	})
}

func (h *AccountHandler) setSessionCookie(c *fiber.Ctx, token string, expires time.Time) {
	sameSite := fiber.CookieSameSiteLaxMode
	if h.cookieSecure {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: sameSite,
	})
}

func (h *AccountHandler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.requestTimeout)
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		log.Printf("Error parsing request body for %s: %v", c.Path(), err)
		return common.Wrap(common.ErrBadRequest, "Invalid request body", err)
	}
	return nil
}

func currentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, common.Unauthenticated("Not authorized, please login")
	}
	return user, nil
}

func sessionResponse(result *services.AuthResult) models.UserResponse {
	resp := result.User.Profile()
	resp.Token = result.Token
	return resp
}
