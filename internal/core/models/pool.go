package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is one stake bucket earning a weighted share of the global per-tick
// reward budget. Pools are append-only; the ID is the position in the pool
// list and never changes.
type Pool struct {
	ID               uint64         `json:"id"`
	StakeAsset       common.Address `json:"stake_asset"`
	RewardWeight     uint64         `json:"reward_weight"`
	LastAccrualTick  uint64         `json:"last_accrual_tick"`
	AccRewardPerUnit *big.Int       `json:"acc_reward_per_unit"`
}

// Position is one user's stake and reward-debt record within a pool. After
// every deposit, withdraw or harvest the debt satisfies
// RewardDebt == StakedAmount * AccRewardPerUnit / Scale.
type Position struct {
	PoolID       uint64         `json:"pool_id"`
	User         common.Address `json:"user"`
	StakedAmount *big.Int       `json:"staked_amount"`
	RewardDebt   *big.Int       `json:"reward_debt"`
}

func NewPosition(poolID uint64, user common.Address) *Position {
	return &Position{
		PoolID:       poolID,
		User:         user,
		StakedAmount: new(big.Int),
		RewardDebt:   new(big.Int),
	}
}

// Clone returns a deep copy, used to hand records to callers without
// exposing the ledger-owned originals.
func (p *Position) Clone() *Position {
	return &Position{
		PoolID:       p.PoolID,
		User:         p.User,
		StakedAmount: new(big.Int).Set(p.StakedAmount),
		RewardDebt:   new(big.Int).Set(p.RewardDebt),
	}
}

func (p *Pool) Clone() *Pool {
	return &Pool{
		ID:               p.ID,
		StakeAsset:       p.StakeAsset,
		RewardWeight:     p.RewardWeight,
		LastAccrualTick:  p.LastAccrualTick,
		AccRewardPerUnit: new(big.Int).Set(p.AccRewardPerUnit),
	}
}
