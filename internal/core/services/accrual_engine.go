package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakelabs/harvest-server/internal/core/models"
	"github.com/stakelabs/harvest-server/internal/core/ports"
)

// Scale is the fixed-point factor for the per-unit reward accumulator.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// AccrualEngine keeps a pool's reward-per-unit accumulator consistent with
// elapsed ticks and the pool's current stake balance. Reward for an interval
// is elapsed * rewardPerTick * weight / totalWeight, credited to the
// accumulator as reward * Scale / poolStake (both divisions truncate).
type AccrualEngine struct {
	timeSource    ports.TimeSource
	token         ports.TokenPort
	custody       common.Address
	rewardPerTick *big.Int
}

func NewAccrualEngine(timeSource ports.TimeSource, token ports.TokenPort, custody common.Address, rewardPerTick *big.Int) *AccrualEngine {
	return &AccrualEngine{
		timeSource:    timeSource,
		token:         token,
		custody:       custody,
		rewardPerTick: new(big.Int).Set(rewardPerTick),
	}
}

// BringCurrent advances the pool's accumulator to the current tick. It is a
// no-op when the pool is already current. An empty pool forfeits the
// interval's budget: only the tick advances. All reads happen before any
// mutation, so a failed call leaves the pool untouched.
func (e *AccrualEngine) BringCurrent(ctx context.Context, pool *models.Pool, totalWeight uint64) error {
	tick, err := e.timeSource.CurrentTick(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current tick: %w", err)
	}
	if tick <= pool.LastAccrualTick {
		return nil
	}

	if totalWeight == 0 {
		return fmt.Errorf("pool %d: %w", pool.ID, ErrZeroTotalWeight)
	}

	stake, err := e.token.BalanceOf(ctx, pool.StakeAsset, e.custody)
	if err != nil {
		return fmt.Errorf("failed to read stake balance for pool %d: %w", pool.ID, err)
	}

	if stake.Sign() == 0 {
		pool.LastAccrualTick = tick
		return nil
	}

	pool.AccRewardPerUnit = e.advance(pool, tick, stake, totalWeight)
	pool.LastAccrualTick = tick
	return nil
}

// PendingReward previews what a BringCurrent followed by a settle would pay,
// without mutating anything. The result matches the real payout bit-for-bit.
func (e *AccrualEngine) PendingReward(ctx context.Context, pool *models.Pool, position *models.Position, totalWeight uint64) (*big.Int, error) {
	tick, err := e.timeSource.CurrentTick(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current tick: %w", err)
	}

	acc := pool.AccRewardPerUnit
	if tick > pool.LastAccrualTick {
		if totalWeight == 0 {
			return nil, fmt.Errorf("pool %d: %w", pool.ID, ErrZeroTotalWeight)
		}
		stake, err := e.token.BalanceOf(ctx, pool.StakeAsset, e.custody)
		if err != nil {
			return nil, fmt.Errorf("failed to read stake balance for pool %d: %w", pool.ID, err)
		}
		if stake.Sign() != 0 {
			acc = e.advance(pool, tick, stake, totalWeight)
		}
	}

	return settleAgainst(acc, position)
}

func (e *AccrualEngine) advance(pool *models.Pool, tick uint64, stake *big.Int, totalWeight uint64) *big.Int {
	elapsed := new(big.Int).SetUint64(tick - pool.LastAccrualTick)

	reward := new(big.Int).Mul(elapsed, e.rewardPerTick)
	reward.Mul(reward, new(big.Int).SetUint64(pool.RewardWeight))
	reward.Quo(reward, new(big.Int).SetUint64(totalWeight))

	delta := reward.Mul(reward, Scale)
	delta.Quo(delta, stake)

	return new(big.Int).Add(pool.AccRewardPerUnit, delta)
}

// settleAgainst computes staked * acc / Scale - debt. A negative result means
// the accumulator moved backward relative to the recorded debt, which is a
// corrupted-state condition.
func settleAgainst(acc *big.Int, position *models.Position) (*big.Int, error) {
	entitled := new(big.Int).Mul(position.StakedAmount, acc)
	entitled.Quo(entitled, Scale)
	pending := entitled.Sub(entitled, position.RewardDebt)
	if pending.Sign() < 0 {
		return nil, fmt.Errorf("pool %d user %s: negative pending reward %s: %w",
			position.PoolID, position.User.Hex(), pending.String(), ErrInvariantViolation)
	}
	return pending, nil
}
