package services

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakelabs/harvest-server/internal/core/models"
)

type positionKey struct {
	poolID uint64
	user   common.Address
}

// PositionLedger tracks per-(pool, user) stake and reward debt. Records are
// created zero-valued on first touch and never removed, only zeroed.
type PositionLedger struct {
	positions map[positionKey]*models.Position
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[positionKey]*models.Position),
	}
}

// Get returns the position for (poolID, user), creating a zero-valued record
// on first reference.
func (l *PositionLedger) Get(poolID uint64, user common.Address) *models.Position {
	key := positionKey{poolID: poolID, user: user}
	if pos, ok := l.positions[key]; ok {
		return pos
	}
	pos := models.NewPosition(poolID, user)
	l.positions[key] = pos
	return pos
}

// Lookup returns the tracked position or nil, without creating one. Queries
// use it so read paths never grow the ledger.
func (l *PositionLedger) Lookup(poolID uint64, user common.Address) *models.Position {
	return l.positions[positionKey{poolID: poolID, user: user}]
}

// Put installs a loaded record, used when restoring persisted state.
func (l *PositionLedger) Put(position *models.Position) {
	l.positions[positionKey{poolID: position.PoolID, user: position.User}] = position
}

// Settle computes the pending reward against the pool's accumulator without
// touching the debt. The caller resets the debt after payout so the two
// happen as one logical step.
func (l *PositionLedger) Settle(pool *models.Pool, position *models.Position) (*big.Int, error) {
	return settleAgainst(pool.AccRewardPerUnit, position)
}

// ResetDebt snapshots the position's entitlement at the current accumulator,
// zeroing its pending reward.
func (l *PositionLedger) ResetDebt(pool *models.Pool, position *models.Position) {
	debt := new(big.Int).Mul(position.StakedAmount, pool.AccRewardPerUnit)
	position.RewardDebt = debt.Quo(debt, Scale)
}

// All returns every tracked position ordered by (pool, user) for
// deterministic snapshots.
func (l *PositionLedger) All() []*models.Position {
	out := make([]*models.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PoolID != out[j].PoolID {
			return out[i].PoolID < out[j].PoolID
		}
		return out[i].User.Hex() < out[j].User.Hex()
	})
	return out
}
