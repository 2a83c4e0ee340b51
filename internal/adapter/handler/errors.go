package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Errors    []string  `json:"errors"`
}

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{domain.ErrAccountNotFound, fiber.StatusNotFound, "Account not found."},
	{domain.ErrUnauthorizedAccess, fiber.StatusForbidden, "You do not have permission to access this account."},
	{domain.ErrUnauthorizedTransaction, fiber.StatusForbidden, "You do not have permission to perform this transaction."},
	{domain.ErrInvalidCredentials, fiber.StatusBadRequest, "Invalid account password."},
	{domain.ErrSameAccountTransfer, fiber.StatusBadRequest, "Transfer to the same account is not allowed."},
	{domain.ErrInsufficientBalance, fiber.StatusBadRequest, "Insufficient balance."},
	{domain.ErrInvalidAmount, fiber.StatusBadRequest, "The transaction amount cannot be negative or zero."},
	{domain.ErrEmailTaken, fiber.StatusBadRequest, "Email already registered."},
	{domain.ErrAuthentication, fiber.StatusUnauthorized, "Invalid email or password."},
	{middleware.ErrUnauthenticated, fiber.StatusUnauthorized, "Authentication required."},
	{middleware.ErrForbidden, fiber.StatusForbidden, "Access denied."},
}

// ErrorHandler renders any error returned by a handler as an ErrorResponse.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := toResponse(err)

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		case errors.Is(err, domain.ErrDataIntegrity):
			logger.Error("data integrity violation", zap.String("path", c.Path()), zap.Error(err))
		default:
			logger.Warn("request rejected", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
		}

		return c.Status(status).JSON(body)
	}
}

func toResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Timestamp: time.Now().UTC(), Errors: []string{}}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		body.Message = validationErr.Error()
		body.Errors = validationErr.Errors
		return fiber.StatusBadRequest, body
	}

	var integrityErr *domain.IntegrityError
	if errors.As(err, &integrityErr) {
		body.Message = "Integrity violation: " + integrityErr.Detail
		return fiber.StatusBadRequest, body
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			body.Message = m.message
			return m.status, body
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		body.Message = fe.Message
		return fe.Code, body
	}

	body.Message = "Internal server error"
	return fiber.StatusInternalServerError, body
}
