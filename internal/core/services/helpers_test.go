package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakelabs/harvest-server/internal/core/models"
	"github.com/stakelabs/harvest-server/internal/core/ports"
	"github.com/stakelabs/harvest-server/pkg/logger"
)

func init() {
	logger.InitWithMode(logger.LogModeTest)
}

var (
	custodyAddr = common.HexToAddress("0x00000000000000000000000000000000000C0DE0")
	adminAddr   = common.HexToAddress("0x000000000000000000000000000000000000AD01")
	userA       = common.HexToAddress("0x000000000000000000000000000000000000aaa1")
	userB       = common.HexToAddress("0x000000000000000000000000000000000000bbb2")
	rewardAsset = common.HexToAddress("0x0000000000000000000000000000000000FEED00")
	stakeAssetA = common.HexToAddress("0x000000000000000000000000000000000057A6E1")
)

// stubTime is a manually advanced TimeSource.
type stubTime struct {
	tick uint64
}

func (s *stubTime) CurrentTick(context.Context) (uint64, error) {
	return s.tick, nil
}

// memToken is an in-memory TokenPort. Outbound Transfer always spends from
// the custody account, matching the chain binding where the custody key
// signs every transfer.
type memToken struct {
	mu           sync.Mutex
	balances     map[common.Address]map[common.Address]*big.Int
	failOutbound bool
}

func newMemToken() *memToken {
	return &memToken{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (t *memToken) balance(asset, account common.Address) *big.Int {
	accounts, ok := t.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		t.balances[asset] = accounts
	}
	bal, ok := accounts[account]
	if !ok {
		bal = new(big.Int)
		accounts[account] = bal
	}
	return bal
}

func (t *memToken) mint(asset, account common.Address, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balance(asset, account)
	bal.Add(bal, big.NewInt(amount))
}

func (t *memToken) mintBig(asset, account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balance(asset, account)
	bal.Add(bal, amount)
}

func (t *memToken) BalanceOf(_ context.Context, asset, account common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(asset, account)), nil
}

func (t *memToken) Transfer(_ context.Context, asset, to common.Address, amount *big.Int) error {
	if t.failOutbound {
		return errors.New("transfer rejected")
	}
	return t.move(asset, custodyAddr, to, amount)
}

func (t *memToken) TransferFrom(_ context.Context, asset, from, to common.Address, amount *big.Int) error {
	return t.move(asset, from, to, amount)
}

func (t *memToken) move(asset, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fromBal := t.balance(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s has %s, needs %s", from.Hex(), fromBal, amount)
	}
	fromBal.Sub(fromBal, amount)
	toBal := t.balance(asset, to)
	toBal.Add(toBal, amount)
	return nil
}

type poolRepoStub struct {
	saved map[uint64]*models.Pool
}

func newPoolRepoStub() *poolRepoStub {
	return &poolRepoStub{saved: make(map[uint64]*models.Pool)}
}

func (r *poolRepoStub) Save(_ context.Context, pool *models.Pool) error {
	r.saved[pool.ID] = pool.Clone()
	return nil
}

func (r *poolRepoStub) List(context.Context) ([]*models.Pool, error) {
	out := make([]*models.Pool, 0, len(r.saved))
	for _, pool := range r.saved {
		out = append(out, pool.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type positionRepoStub struct {
	saved map[string]*models.Position
}

func newPositionRepoStub() *positionRepoStub {
	return &positionRepoStub{saved: make(map[string]*models.Position)}
}

func (r *positionRepoStub) Save(_ context.Context, position *models.Position) error {
	key := fmt.Sprintf("%d/%s", position.PoolID, position.User.Hex())
	r.saved[key] = position.Clone()
	return nil
}

func (r *positionRepoStub) List(context.Context) ([]*models.Position, error) {
	out := make([]*models.Position, 0, len(r.saved))
	for _, position := range r.saved {
		out = append(out, position.Clone())
	}
	return out, nil
}

type recordingSink struct {
	events []models.LedgerEvent
}

func (s *recordingSink) Notify(_ context.Context, event models.LedgerEvent) {
	s.events = append(s.events, event)
}

type ledgerFixture struct {
	ledger *LedgerService
	time   *stubTime
	token  *memToken
	pools  *poolRepoStub
	sink   *recordingSink
}

func newLedgerFixture(rewardPerTick int64, startTick uint64) *ledgerFixture {
	ts := &stubTime{}
	token := newMemToken()
	poolRepo := newPoolRepoStub()
	positionRepo := newPositionRepoStub()
	sink := &recordingSink{}

	ledger := NewLedgerService(
		ts,
		token,
		NewAllowlistAuthorizer([]string{adminAddr.Hex()}),
		poolRepo,
		positionRepo,
		custodyAddr,
		rewardAsset,
		big.NewInt(rewardPerTick),
		startTick,
	)
	ledger.AddEventSink(sink)

	return &ledgerFixture{
		ledger: ledger,
		time:   ts,
		token:  token,
		pools:  poolRepo,
		sink:   sink,
	}
}

var _ ports.TimeSource = (*stubTime)(nil)
var _ ports.TokenPort = (*memToken)(nil)
var _ ports.PoolRepository = (*poolRepoStub)(nil)
var _ ports.PositionRepository = (*positionRepoStub)(nil)
var _ ports.EventSink = (*recordingSink)(nil)
