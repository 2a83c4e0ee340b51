package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/gobank/internal/core/account"
	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

type AccountHandler struct {
	Service *account.Service
}

// CreateAccountRequest defines what the user sends us
type CreateAccountRequest struct {
	Number  string      `json:"number" validate:"required,len=6"`
	Balance json.Number `json:"balance" validate:"required,nonnegative_amount"`
}

// UpdateAccountRequest carries a partial update; absent fields stay unchanged.
type UpdateAccountRequest struct {
	Number  *string      `json:"number" validate:"omitnil,len=6"`
	Balance *json.Number `json:"balance" validate:"omitnil,nonnegative_amount"`
}

func callerIdentity(c *fiber.Ctx) (domain.Identity, error) {
	id, ok := middleware.Identity(c)
	if !ok {
		return domain.Identity{}, middleware.ErrUnauthenticated
	}
	return id, nil
}

// pathAccountID treats a malformed id like an unknown one.
func pathAccountID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, domain.ErrAccountNotFound
	}
	return id, nil
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	accounts, err := h.Service.List(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(accounts)
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}

	// 1. Parse and validate JSON
	var req CreateAccountRequest
	if err := parseBodyAndValidate(c, &req); err != nil {
		return err
	}
	balance, err := domain.ParseAmount(req.Balance.String())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	// 2. Call Service
	acc, err := h.Service.Create(c.UserContext(), req.Number, balance, id)
	if err != nil {
		return err
	}

	// 3. Return Success
	return c.Status(fiber.StatusCreated).JSON(acc)
}

func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	accountID, err := pathAccountID(c, "id")
	if err != nil {
		return err
	}

	acc, err := h.Service.Get(c.UserContext(), accountID, id)
	if err != nil {
		return err
	}
	return c.JSON(acc)
}

func (h *AccountHandler) UpdateAccount(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	accountID, err := pathAccountID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateAccountRequest
	if err := parseBodyAndValidate(c, &req); err != nil {
		return err
	}

	patch := domain.AccountPatch{Number: req.Number}
	if req.Balance != nil {
		balance, err := domain.ParseAmount(req.Balance.String())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		patch.Balance = &balance
	}

	acc, err := h.Service.Update(c.UserContext(), accountID, patch, id)
	if err != nil {
		return err
	}
	return c.JSON(acc)
}

func (h *AccountHandler) DeleteAccount(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	accountID, err := pathAccountID(c, "id")
	if err != nil {
		return err
	}

	if err := h.Service.Delete(c.UserContext(), accountID, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
