package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/SkillSwap/internal/dtos"
	"github.com/preetsinghmakkar/SkillSwap/internal/services"
)

type UserHandler struct {
	ledger *services.LedgerService
}

func NewUserHandler(ledger *services.LedgerService) *UserHandler {
	return &UserHandler{ledger: ledger}
}

func (h *UserHandler) Balance(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.BalanceResponse{
		UserID:      balance.UserID.String(),
		TimeBalance: balance.TimeBalance,
	})
}

func (h *UserHandler) Transactions(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	txns, err := h.ledger.Transactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.TransactionListResponse{Transactions: txns})
}
