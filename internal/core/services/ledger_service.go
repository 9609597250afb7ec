package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stakelabs/harvest-server/internal/core/models"
	"github.com/stakelabs/harvest-server/internal/core/ports"
	"github.com/stakelabs/harvest-server/pkg/logger"
)

// LedgerService owns all pool and position records and exposes the public
// ledger operations. Every operation runs under one mutex, so the effects of
// two operations never interleave; in particular no external token call can
// observe half-updated state of another operation.
type LedgerService struct {
	mu sync.Mutex

	engine     *AccrualEngine
	positions  *PositionLedger
	timeSource ports.TimeSource
	token      ports.TokenPort
	authorizer ports.Authorizer

	poolRepo     ports.PoolRepository
	positionRepo ports.PositionRepository
	sinks        []ports.EventSink

	custody     common.Address
	rewardAsset common.Address
	startTick   uint64

	pools       []*models.Pool
	totalWeight uint64
}

func NewLedgerService(
	timeSource ports.TimeSource,
	token ports.TokenPort,
	authorizer ports.Authorizer,
	poolRepo ports.PoolRepository,
	positionRepo ports.PositionRepository,
	custody common.Address,
	rewardAsset common.Address,
	rewardPerTick *big.Int,
	startTick uint64,
) *LedgerService {
	return &LedgerService{
		engine:       NewAccrualEngine(timeSource, token, custody, rewardPerTick),
		positions:    NewPositionLedger(),
		timeSource:   timeSource,
		token:        token,
		authorizer:   authorizer,
		poolRepo:     poolRepo,
		positionRepo: positionRepo,
		custody:      custody,
		rewardAsset:  rewardAsset,
		startTick:    startTick,
	}
}

// AddEventSink registers an observer for ledger notifications.
func (s *LedgerService) AddEventSink(sink ports.EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Load restores persisted pools and positions. It must run before the
// service starts accepting operations.
func (s *LedgerService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools, err := s.poolRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pools: %w", err)
	}
	s.pools = make([]*models.Pool, len(pools))
	s.totalWeight = 0
	for _, pool := range pools {
		if pool.ID >= uint64(len(pools)) {
			return fmt.Errorf("pool ids are not contiguous: id %d with %d pools", pool.ID, len(pools))
		}
		s.pools[pool.ID] = pool
		s.totalWeight += pool.RewardWeight
	}

	positions, err := s.positionRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	for _, pos := range positions {
		s.positions.Put(pos)
	}

	log := logger.WithComponent("ledger")
	log.Info().
		Int("pools", len(s.pools)).
		Int("positions", len(positions)).
		Uint64("total_weight", s.totalWeight).
		Msg("Ledger state loaded")

	return nil
}

// Deposit stakes amount into the pool for user, paying out any pending
// reward first. A zero amount is the idiomatic way to harvest.
func (s *LedgerService) Deposit(ctx context.Context, user common.Address, poolID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("deposit amount must be non-negative: %w", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}
	if err := s.engine.BringCurrent(ctx, pool, s.totalWeight); err != nil {
		return err
	}

	pos := s.positions.Get(poolID, user)
	if pos.StakedAmount.Sign() > 0 {
		pending, err := s.positions.Settle(pool, pos)
		if err != nil {
			return err
		}
		if _, err := s.safePay(ctx, user, pending); err != nil {
			return err
		}
	}

	if amount.Sign() > 0 {
		if err := s.token.TransferFrom(ctx, pool.StakeAsset, user, s.custody, amount); err != nil {
			// The reward payout above already went out; keep the books
			// consistent with it before surfacing the failure.
			s.positions.ResetDebt(pool, pos)
			s.persist(ctx, pool, pos)
			return fmt.Errorf("failed to pull stake for pool %d: %w", poolID, err)
		}
		pos.StakedAmount = new(big.Int).Add(pos.StakedAmount, amount)
	}
	s.positions.ResetDebt(pool, pos)
	s.persist(ctx, pool, pos)

	s.emit(ctx, models.EventDeposit, poolID, user, amount)
	return nil
}

// Withdraw removes amount of stake, paying out the pending reward computed
// against the pre-withdrawal stake. Requesting more than staked fails before
// any state change.
func (s *LedgerService) Withdraw(ctx context.Context, user common.Address, poolID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("withdraw amount must be non-negative: %w", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}

	pos := s.positions.Get(poolID, user)
	if pos.StakedAmount.Cmp(amount) < 0 {
		return fmt.Errorf("pool %d: staked %s < requested %s: %w",
			poolID, pos.StakedAmount.String(), amount.String(), ErrInsufficientStake)
	}

	if err := s.engine.BringCurrent(ctx, pool, s.totalWeight); err != nil {
		return err
	}

	pending, err := s.positions.Settle(pool, pos)
	if err != nil {
		return err
	}
	if _, err := s.safePay(ctx, user, pending); err != nil {
		return err
	}

	// The position is decremented before the outbound stake transfer.
	prevStaked := pos.StakedAmount
	pos.StakedAmount = new(big.Int).Sub(pos.StakedAmount, amount)
	s.positions.ResetDebt(pool, pos)

	if amount.Sign() > 0 {
		if err := s.token.Transfer(ctx, pool.StakeAsset, user, amount); err != nil {
			pos.StakedAmount = prevStaked
			s.positions.ResetDebt(pool, pos)
			s.persist(ctx, pool, pos)
			return fmt.Errorf("failed to return stake for pool %d: %w", poolID, err)
		}
	}
	s.persist(ctx, pool, pos)

	s.emit(ctx, models.EventWithdraw, poolID, user, amount)
	return nil
}

// EmergencyWithdraw returns the caller's full stake immediately and forfeits
// any pending reward. No accrual update happens; this is the circuit-breaker
// path that bypasses settle entirely.
func (s *LedgerService) EmergencyWithdraw(ctx context.Context, user common.Address, poolID uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}

	pos := s.positions.Get(poolID, user)
	amount := pos.StakedAmount
	prevDebt := pos.RewardDebt
	pos.StakedAmount = new(big.Int)
	pos.RewardDebt = new(big.Int)

	if amount.Sign() > 0 {
		if err := s.token.Transfer(ctx, pool.StakeAsset, user, amount); err != nil {
			pos.StakedAmount = amount
			pos.RewardDebt = prevDebt
			return nil, fmt.Errorf("failed to return stake for pool %d: %w", poolID, err)
		}
	}
	s.persist(ctx, nil, pos)

	s.emit(ctx, models.EventEmergencyWithdraw, poolID, user, amount)
	return new(big.Int).Set(amount), nil
}

// PendingReward previews the user's unclaimed reward without mutating state.
func (s *LedgerService) PendingReward(ctx context.Context, user common.Address, poolID uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return nil, err
	}

	pos := s.positions.Lookup(poolID, user)
	if pos == nil {
		pos = models.NewPosition(poolID, user)
	}
	return s.engine.PendingReward(ctx, pool, pos, s.totalWeight)
}

// AddPool registers a new stake asset with the given reward weight. When
// withUpdate is set, every existing pool is brought current first so the new
// weight does not apply to already-elapsed ticks.
func (s *LedgerService) AddPool(ctx context.Context, caller common.Address, rewardWeight uint64, stakeAsset common.Address, withUpdate bool) (*models.Pool, error) {
	if err := s.authorizer.Authorize(ctx, caller, ports.ActionAddPool); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if withUpdate {
		if err := s.massUpdateLocked(ctx); err != nil {
			return nil, err
		}
	}

	tick, err := s.timeSource.CurrentTick(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current tick: %w", err)
	}
	lastAccrual := tick
	if s.startTick > lastAccrual {
		lastAccrual = s.startTick
	}

	pool := &models.Pool{
		ID:               uint64(len(s.pools)),
		StakeAsset:       stakeAsset,
		RewardWeight:     rewardWeight,
		LastAccrualTick:  lastAccrual,
		AccRewardPerUnit: new(big.Int),
	}
	s.pools = append(s.pools, pool)
	s.totalWeight += rewardWeight
	s.persist(ctx, pool, nil)

	s.emit(ctx, models.EventPoolAdded, pool.ID, caller, new(big.Int).SetUint64(rewardWeight))
	return pool.Clone(), nil
}

// SetPool changes a pool's reward weight. Without withUpdate the new weight
// applies retroactively to the whole unaccrued interval since the pool's
// last accrual tick; callers that care must mass-update first.
func (s *LedgerService) SetPool(ctx context.Context, caller common.Address, poolID uint64, rewardWeight uint64, withUpdate bool) error {
	if err := s.authorizer.Authorize(ctx, caller, ports.ActionSetPool); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}

	if withUpdate {
		if err := s.massUpdateLocked(ctx); err != nil {
			return err
		}
	}

	s.totalWeight = s.totalWeight - pool.RewardWeight + rewardWeight
	pool.RewardWeight = rewardWeight
	s.persist(ctx, pool, nil)

	s.emit(ctx, models.EventPoolUpdated, poolID, caller, new(big.Int).SetUint64(rewardWeight))
	return nil
}

// Fund pulls amount of the reward asset from the funder into custody. The
// deposit is irreversible; funded rewards only leave via user payouts.
func (s *LedgerService) Fund(ctx context.Context, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("fund amount must be positive: %w", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.token.TransferFrom(ctx, s.rewardAsset, from, s.custody, amount); err != nil {
		return fmt.Errorf("failed to pull reward funding: %w", err)
	}

	s.emit(ctx, models.EventFunded, 0, from, amount)
	return nil
}

// UpdatePool forces an accrual update for one pool.
func (s *LedgerService) UpdatePool(ctx context.Context, poolID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.pool(poolID)
	if err != nil {
		return err
	}
	if err := s.engine.BringCurrent(ctx, pool, s.totalWeight); err != nil {
		return err
	}
	s.persist(ctx, pool, nil)
	return nil
}

// MassUpdatePools brings every pool current. Cost grows with the pool count;
// callers opt in explicitly.
func (s *LedgerService) MassUpdatePools(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.massUpdateLocked(ctx)
}

func (s *LedgerService) PoolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools)
}

func (s *LedgerService) Pools() []*models.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Pool, len(s.pools))
	for i, pool := range s.pools {
		out[i] = pool.Clone()
	}
	return out
}

func (s *LedgerService) PositionOf(poolID uint64, user common.Address) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool(poolID); err != nil {
		return nil, err
	}
	if pos := s.positions.Lookup(poolID, user); pos != nil {
		return pos.Clone(), nil
	}
	return models.NewPosition(poolID, user), nil
}

// LockedRewardBalance reports the reward-asset balance held in custody, i.e.
// the maximum the insolvency guard can currently pay.
func (s *LedgerService) LockedRewardBalance(ctx context.Context) (*big.Int, error) {
	return s.token.BalanceOf(ctx, s.rewardAsset, s.custody)
}

// Snapshot returns deep copies of all pools and positions for export.
func (s *LedgerService) Snapshot() ([]*models.Pool, []*models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pools := make([]*models.Pool, len(s.pools))
	for i, pool := range s.pools {
		pools[i] = pool.Clone()
	}
	all := s.positions.All()
	positions := make([]*models.Position, len(all))
	for i, pos := range all {
		positions[i] = pos.Clone()
	}
	return pools, positions
}

func (s *LedgerService) pool(poolID uint64) (*models.Pool, error) {
	if poolID >= uint64(len(s.pools)) {
		return nil, fmt.Errorf("pool %d: %w", poolID, ErrUnknownPool)
	}
	return s.pools[poolID], nil
}

func (s *LedgerService) massUpdateLocked(ctx context.Context) error {
	for _, pool := range s.pools {
		if err := s.engine.BringCurrent(ctx, pool, s.totalWeight); err != nil {
			return err
		}
		s.persist(ctx, pool, nil)
	}
	return nil
}

// safePay sends amount of the reward asset, capped at the custody balance.
// The shortfall of a capped payout is forfeited, never queued or retried.
// A zero amount is a no-op.
func (s *LedgerService) safePay(ctx context.Context, to common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}

	balance, err := s.token.BalanceOf(ctx, s.rewardAsset, s.custody)
	if err != nil {
		return nil, fmt.Errorf("failed to read reward balance: %w", err)
	}

	pay := amount
	if amount.Cmp(balance) > 0 {
		pay = balance
		log := logger.WithComponent("ledger")
		log.Warn().
			Str("requested", amount.String()).
			Str("available", balance.String()).
			Str("recipient", to.Hex()).
			Msg("Reward payout capped at available balance")
	}

	if pay.Sign() > 0 {
		if err := s.token.Transfer(ctx, s.rewardAsset, to, pay); err != nil {
			return nil, fmt.Errorf("failed to pay reward: %w", err)
		}
	}
	return new(big.Int).Set(pay), nil
}

// persist write-through saves the touched records. Persistence failures are
// logged, not surfaced: the in-memory aggregate is authoritative and already
// mutated, and external transfers cannot be unwound.
func (s *LedgerService) persist(ctx context.Context, pool *models.Pool, position *models.Position) {
	log := logger.WithComponent("ledger")
	if pool != nil {
		if err := s.poolRepo.Save(ctx, pool); err != nil {
			log.Error().Err(err).Uint64("pool_id", pool.ID).Msg("Failed to persist pool")
		}
	}
	if position != nil {
		if err := s.positionRepo.Save(ctx, position); err != nil {
			log.Error().Err(err).
				Uint64("pool_id", position.PoolID).
				Str("user", position.User.Hex()).
				Msg("Failed to persist position")
		}
	}
}

func (s *LedgerService) emit(ctx context.Context, eventType models.LedgerEventType, poolID uint64, user common.Address, amount *big.Int) {
	event := models.LedgerEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		PoolID:    poolID,
		User:      user,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	for _, sink := range s.sinks {
		sink.Notify(ctx, event)
	}
}
