package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	apimodels "github.com/stakelabs/harvest-server/internal/api/models"
	"github.com/stakelabs/harvest-server/internal/core/services"
)

type AdminHandler struct {
	ledger *services.LedgerService
}

func NewAdminHandler(ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

func (h *AdminHandler) AddPool(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}

	var req apimodels.AddPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !common.IsHexAddress(req.StakeAsset) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stake asset address"})
		return
	}

	pool, err := h.ledger.AddPool(c.Request.Context(), admin, req.RewardWeight, common.HexToAddress(req.StakeAsset), req.WithUpdate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":                pool.ID,
		"stake_asset":       pool.StakeAsset.Hex(),
		"reward_weight":     pool.RewardWeight,
		"last_accrual_tick": pool.LastAccrualTick,
	})
}

func (h *AdminHandler) SetPool(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}
	id, ok := poolID(c)
	if !ok {
		return
	}

	var req apimodels.SetPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.ledger.SetPool(c.Request.Context(), admin, id, req.RewardWeight, req.WithUpdate); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *AdminHandler) Fund(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}

	var req apimodels.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	if err := h.ledger.Fund(c.Request.Context(), from, amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
