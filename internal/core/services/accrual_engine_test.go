package services

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakelabs/harvest-server/internal/core/models"
)

func newTestPool(lastTick uint64, weight uint64) *models.Pool {
	return &models.Pool{
		ID:               0,
		StakeAsset:       stakeAssetA,
		RewardWeight:     weight,
		LastAccrualTick:  lastTick,
		AccRewardPerUnit: new(big.Int),
	}
}

func TestBringCurrentNoElapsedTime(t *testing.T) {
	ts := &stubTime{tick: 10}
	token := newMemToken()
	token.mint(stakeAssetA, custodyAddr, 1000)
	engine := NewAccrualEngine(ts, token, custodyAddr, big.NewInt(100))

	pool := newTestPool(10, 1)
	require.NoError(t, engine.BringCurrent(context.Background(), pool, 1))

	assert.Equal(t, uint64(10), pool.LastAccrualTick)
	assert.Zero(t, pool.AccRewardPerUnit.Sign())
}

func TestBringCurrentEmptyPoolForfeitsInterval(t *testing.T) {
	ts := &stubTime{tick: 20}
	token := newMemToken()
	engine := NewAccrualEngine(ts, token, custodyAddr, big.NewInt(100))

	pool := newTestPool(10, 1)
	require.NoError(t, engine.BringCurrent(context.Background(), pool, 1))

	// The tick advances but the skipped interval's budget is not carried
	// forward.
	assert.Equal(t, uint64(20), pool.LastAccrualTick)
	assert.Zero(t, pool.AccRewardPerUnit.Sign())

	token.mint(stakeAssetA, custodyAddr, 1000)
	ts.tick = 21
	require.NoError(t, engine.BringCurrent(context.Background(), pool, 1))
	assert.Equal(t, big.NewInt(100_000_000_000), pool.AccRewardPerUnit) // 100 * 1e12 / 1000
}

func TestBringCurrentAccrual(t *testing.T) {
	ts := &stubTime{tick: 15}
	token := newMemToken()
	token.mint(stakeAssetA, custodyAddr, 1000)
	engine := NewAccrualEngine(ts, token, custodyAddr, big.NewInt(1000))

	pool := newTestPool(10, 3)
	require.NoError(t, engine.BringCurrent(context.Background(), pool, 4))

	// reward = 5 * 1000 * 3 / 4 = 3750; acc = 3750 * 1e12 / 1000
	expected := new(big.Int).Mul(big.NewInt(3750), Scale)
	expected.Quo(expected, big.NewInt(1000))
	assert.Equal(t, expected, pool.AccRewardPerUnit)
	assert.Equal(t, uint64(15), pool.LastAccrualTick)
}

func TestBringCurrentZeroTotalWeight(t *testing.T) {
	ts := &stubTime{tick: 15}
	token := newMemToken()
	token.mint(stakeAssetA, custodyAddr, 1000)
	engine := NewAccrualEngine(ts, token, custodyAddr, big.NewInt(1000))

	pool := newTestPool(10, 0)
	err := engine.BringCurrent(context.Background(), pool, 0)
	require.ErrorIs(t, err, ErrZeroTotalWeight)

	// Fail-fast: nothing moved.
	assert.Equal(t, uint64(10), pool.LastAccrualTick)
	assert.Zero(t, pool.AccRewardPerUnit.Sign())
}

func TestAccumulatorMonotonicity(t *testing.T) {
	ts := &stubTime{tick: 0}
	token := newMemToken()
	token.mint(stakeAssetA, custodyAddr, 777)
	engine := NewAccrualEngine(ts, token, custodyAddr, big.NewInt(313))

	pool := newTestPool(0, 2)
	prevAcc := new(big.Int)
	prevTick := uint64(0)

	for _, tick := range []uint64{1, 3, 3, 10, 11, 50} {
		ts.tick = tick
		require.NoError(t, engine.BringCurrent(context.Background(), pool, 5))
		assert.True(t, pool.AccRewardPerUnit.Cmp(prevAcc) >= 0, "accumulator moved backward")
		assert.True(t, pool.LastAccrualTick >= prevTick, "last accrual tick moved backward")
		prevAcc = new(big.Int).Set(pool.AccRewardPerUnit)
		prevTick = pool.LastAccrualTick
	}
}

func TestSplitIntervalMatchesBulkWithinOneUnit(t *testing.T) {
	token := newMemToken()
	token.mint(stakeAssetA, custodyAddr, 777)

	bulkTime := &stubTime{}
	bulkEngine := NewAccrualEngine(bulkTime, token, custodyAddr, big.NewInt(313))
	bulkPool := newTestPool(0, 3)

	splitTime := &stubTime{}
	splitEngine := NewAccrualEngine(splitTime, token, custodyAddr, big.NewInt(313))
	splitPool := newTestPool(0, 3)

	splits := []uint64{7, 13, 40, 100}
	for _, tick := range splits {
		splitTime.tick = tick
		require.NoError(t, splitEngine.BringCurrent(context.Background(), splitPool, 7))
	}
	bulkTime.tick = 100
	require.NoError(t, bulkEngine.BringCurrent(context.Background(), bulkPool, 7))

	// Compare the reward a full-stake staker would collect: truncation may
	// cost at most one reward unit per split.
	entitle := func(pool *models.Pool) *big.Int {
		out := new(big.Int).Mul(big.NewInt(777), pool.AccRewardPerUnit)
		return out.Quo(out, Scale)
	}
	bulk := entitle(bulkPool)
	split := entitle(splitPool)
	require.True(t, bulk.Cmp(split) >= 0, "split accrual exceeded bulk accrual")

	diff := new(big.Int).Sub(bulk, split)
	maxDrift := big.NewInt(int64(len(splits)))
	assert.True(t, diff.Cmp(maxDrift) <= 0,
		"split accrual drifted by %s, more than one unit per split", diff)
}

func TestPendingRewardPreviewDoesNotMutate(t *testing.T) {
	ts := &stubTime{tick: 10}
	token := newMemToken()
	token.mint(stakeAssetA, custodyAddr, 500)
	engine := NewAccrualEngine(ts, token, custodyAddr, big.NewInt(90))

	pool := newTestPool(0, 1)
	pos := models.NewPosition(0, userA)
	pos.StakedAmount = big.NewInt(500)

	preview, err := engine.PendingReward(context.Background(), pool, pos, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), pool.LastAccrualTick)
	assert.Zero(t, pool.AccRewardPerUnit.Sign())

	// A real update followed by a settle pays the same amount bit-for-bit.
	require.NoError(t, engine.BringCurrent(context.Background(), pool, 1))
	settled, err := settleAgainst(pool.AccRewardPerUnit, pos)
	require.NoError(t, err)
	assert.Equal(t, settled, preview)
}

func TestSettleNegativePendingIsInvariantViolation(t *testing.T) {
	pos := models.NewPosition(0, userA)
	pos.StakedAmount = big.NewInt(10)
	pos.RewardDebt = big.NewInt(999)

	_, err := settleAgainst(big.NewInt(0), pos)
	require.ErrorIs(t, err, ErrInvariantViolation)
}
