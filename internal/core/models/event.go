package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type LedgerEventType string

const (
	EventDeposit           LedgerEventType = "deposit"
	EventWithdraw          LedgerEventType = "withdraw"
	EventEmergencyWithdraw LedgerEventType = "emergency_withdraw"
	EventPoolAdded         LedgerEventType = "pool_added"
	EventPoolUpdated       LedgerEventType = "pool_updated"
	EventFunded            LedgerEventType = "funded"
)

// LedgerEvent is the notification emitted to external observers after a
// state-changing operation completes.
type LedgerEvent struct {
	ID        string          `json:"id"`
	Type      LedgerEventType `json:"type"`
	PoolID    uint64          `json:"pool_id"`
	User      common.Address  `json:"user"`
	Amount    *big.Int        `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
