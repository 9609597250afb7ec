package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakelabs/harvest-server/internal/core/models"
)

// TimeSource supplies the current tick (block height analogue). Values must
// be non-decreasing across calls within a single logical execution.
type TimeSource interface {
	CurrentTick(ctx context.Context) (uint64, error)
}

// TokenPort moves quantities of a fungible asset between accounts and reads
// balances. The ledger never holds custody itself; it only decides amounts.
type TokenPort interface {
	BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, asset, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
}

type AdminAction string

const (
	ActionAddPool AdminAction = "add_pool"
	ActionSetPool AdminAction = "set_pool"
)

// Authorizer decides whether a caller may perform a privileged operation.
// The ledger core delegates all identity decisions to this port.
type Authorizer interface {
	Authorize(ctx context.Context, caller common.Address, action AdminAction) error
}

// EventSink receives notifications after state-changing operations. Sinks
// must not block the calling operation; failures are the sink's problem.
type EventSink interface {
	Notify(ctx context.Context, event models.LedgerEvent)
}

type PoolRepository interface {
	Save(ctx context.Context, pool *models.Pool) error
	List(ctx context.Context) ([]*models.Pool, error)
}

type PositionRepository interface {
	Save(ctx context.Context, position *models.Position) error
	List(ctx context.Context) ([]*models.Position, error)
}
