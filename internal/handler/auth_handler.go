package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/service"
)

// AuthHandler serves the phone login endpoints.
type AuthHandler struct {
	svc    service.AuthService
	logger *zap.SugaredLogger
}

// NewAuthHandler constructs a new handler, given an AuthService.
func NewAuthHandler(svc service.AuthService, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type LoginRequest struct {
	PhoneNumber string `json:"phone_number" form:"phone_number"`
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phone_number" form:"phone_number"`
	EnteredCode string `json:"entered_code" form:"entered_code"`
}

type VerifyCodeResponse struct {
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

// Login handles POST /user-login/.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.svc.Login(c.UserContext(), req.PhoneNumber)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"message": res.Message,
	})
}

// VerifyCode handles POST /input_verification_code/.
func (h *AuthHandler) VerifyCode(c *fiber.Ctx) error {
	var req VerifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.svc.VerifyCode(c.UserContext(), req.PhoneNumber, req.EnteredCode)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(VerifyCodeResponse{
		AccessToken: res.AccessToken,
		Message:     res.Message,
	})
}
