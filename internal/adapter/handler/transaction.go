package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/ledger"
)

type TransactionHandler struct {
	Engine *ledger.Engine
}

type TransferRequest struct {
	FromAccount  string      `json:"fromAccount" validate:"required"`
	ToAccount    string      `json:"toAccount" validate:"required"`
	Amount       json.Number `json:"amount" validate:"required,positive_amount"`
	PasswordUser string      `json:"passwordUser" validate:"required"`
}

func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	txns, err := h.Engine.List(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(txns)
}

func (h *TransactionHandler) Transfer(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}

	var req TransferRequest
	if err := parseBodyAndValidate(c, &req); err != nil {
		return err
	}
	amount, err := domain.ParseAmount(req.Amount.String())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	txn, err := h.Engine.Transfer(c.UserContext(), ledger.TransferRequest{
		FromNumber: req.FromAccount,
		ToNumber:   req.ToAccount,
		Amount:     amount,
		Credential: req.PasswordUser,
	}, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(txn)
}

// GetHistory lists the transactions of the account in the URL, in either direction.
func (h *TransactionHandler) GetHistory(c *fiber.Ctx) error {
	id, err := callerIdentity(c)
	if err != nil {
		return err
	}
	accountID, err := pathAccountID(c, "accountId")
	if err != nil {
		return err
	}

	txns, err := h.Engine.ListByAccount(c.UserContext(), accountID, id)
	if err != nil {
		return err
	}
	return c.JSON(txns)
}
