package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakelabs/harvest-server/internal/core/ports"
)

var ErrUnauthorized = errors.New("caller is not authorized")

// AllowlistAuthorizer grants admin actions to a fixed set of addresses from
// configuration. It is one binding of the Authorizer port; the ledger core
// never inspects caller identity itself.
type AllowlistAuthorizer struct {
	admins map[common.Address]struct{}
}

func NewAllowlistAuthorizer(admins []string) *AllowlistAuthorizer {
	set := make(map[common.Address]struct{}, len(admins))
	for _, admin := range admins {
		set[common.HexToAddress(admin)] = struct{}{}
	}
	return &AllowlistAuthorizer{admins: set}
}

func (a *AllowlistAuthorizer) Authorize(_ context.Context, caller common.Address, action ports.AdminAction) error {
	if _, ok := a.admins[caller]; !ok {
		return fmt.Errorf("%s may not %s: %w", caller.Hex(), action, ErrUnauthorized)
	}
	return nil
}
