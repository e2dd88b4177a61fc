package handlers

import (
	"github.com/gofiber/fiber/v2"

	"uptask/internal/middleware"
	"uptask/internal/services"
)

// AccountHandler handles registration, login and password recovery
type AccountHandler struct {
	accounts *services.AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailRequest carries a single email address
type EmailRequest struct {
	Email string `json:"email"`
}

// PasswordRequest carries a new password
type PasswordRequest struct {
	Password string `json:"password"`
}

// Register creates a new unconfirmed account
// POST /api/users
func (h *AccountHandler) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if _, err := h.accounts.Register(c.UserContext(), req); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Account created, check your email to confirm it",
	})
}

// Login authenticates a confirmed account
// POST /api/users/login
func (h *AccountHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	result, err := h.accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Confirm confirms an account from the emailed link
// GET /api/users/confirm/:token
func (h *AccountHandler) Confirm(c *fiber.Ctx) error {
	if err := h.accounts.Confirm(c.UserContext(), c.Params("token")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Account confirmed"})
}

// ForgotPassword mails a reset link
// POST /api/users/forgot-password
func (h *AccountHandler) ForgotPassword(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.accounts.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "We sent an email with the instructions"})
}

// CheckResetToken validates a reset token before the new password form is shown
// GET /api/users/forgot-password/:token
func (h *AccountHandler) CheckResetToken(c *fiber.Ctx) error {
	if err := h.accounts.CheckResetToken(c.UserContext(), c.Params("token")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Valid token"})
}

// ResetPassword sets a new password
// POST /api/users/forgot-password/:token
func (h *AccountHandler) ResetPassword(c *fiber.Ctx) error {
	var req PasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.accounts.ResetPassword(c.UserContext(), c.Params("token"), req.Password); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password updated"})
}

// Profile returns the authenticated user
// GET /api/users/profile
func (h *AccountHandler) Profile(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}
	return c.JSON(user.ToResponse())
}
