package handlers

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	apimodels "github.com/stakelabs/harvest-server/internal/api/models"
	"github.com/stakelabs/harvest-server/internal/core/services"
)

type LedgerHandler struct {
	ledger *services.LedgerService
}

func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// caller extracts the invoking party from the X-Wallet-Address header.
func caller(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader("X-Wallet-Address")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid X-Wallet-Address header is required"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func poolID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return 0, false
	}
	return id, true
}

func parseAmount(c *gin.Context, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a base-10 integer"})
		return nil, false
	}
	return amount, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownPool):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInsufficientStake),
		errors.Is(err, services.ErrZeroTotalWeight):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *LedgerHandler) Deposit(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := poolID(c)
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

	if err := h.ledger.Deposit(c.Request.Context(), user, id, amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *LedgerHandler) Withdraw(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := poolID(c)
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

	if err := h.ledger.Withdraw(c.Request.Context(), user, id, amount); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *LedgerHandler) EmergencyWithdraw(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := poolID(c)
	if !ok {
		return
	}

	amount, err := h.ledger.EmergencyWithdraw(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": amount.String()})
}

func (h *LedgerHandler) PendingReward(c *gin.Context) {
	id, ok := poolID(c)
	if !ok {
		return
	}
	raw := c.Param("user")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user address"})
		return
	}

	pending, err := h.ledger.PendingReward(c.Request.Context(), common.HexToAddress(raw), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending.String()})
}

func (h *LedgerHandler) PositionOf(c *gin.Context) {
	id, ok := poolID(c)
	if !ok {
		return
	}
	raw := c.Param("user")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user address"})
		return
	}

	position, err := h.ledger.PositionOf(id, common.HexToAddress(raw))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool_id":       position.PoolID,
		"user":          position.User.Hex(),
		"staked_amount": position.StakedAmount.String(),
		"reward_debt":   position.RewardDebt.String(),
	})
}

func (h *LedgerHandler) ListPools(c *gin.Context) {
	pools := h.ledger.Pools()
	out := make([]gin.H, 0, len(pools))
	for _, pool := range pools {
		out = append(out, gin.H{
			"id":                  pool.ID,
			"stake_asset":         pool.StakeAsset.Hex(),
			"reward_weight":       pool.RewardWeight,
			"last_accrual_tick":   pool.LastAccrualTick,
			"acc_reward_per_unit": pool.AccRewardPerUnit.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *LedgerHandler) PoolCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.ledger.PoolCount()})
}

func (h *LedgerHandler) UpdatePool(c *gin.Context) {
	id, ok := poolID(c)
	if !ok {
		return
	}
	if err := h.ledger.UpdatePool(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *LedgerHandler) MassUpdatePools(c *gin.Context) {
	if err := h.ledger.MassUpdatePools(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *LedgerHandler) LockedRewardBalance(c *gin.Context) {
	balance, err := h.ledger.LockedRewardBalance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked_reward_balance": balance.String()})
}
