package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/gobank/internal/core/auth"
	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

type AuthHandler struct {
	Service *auth.Service
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBodyAndValidate(c, &req); err != nil {
		return err
	}

	u, err := h.Service.Register(c.UserContext(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.JSON(u)
}

// Login answers every failure with the same 401 so emails cannot be probed.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil || validateStruct(&req) != nil {
		return domain.ErrAuthentication
	}

	token, err := h.Service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(LoginResponse{Token: token})
}
