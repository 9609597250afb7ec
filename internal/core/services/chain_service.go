package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stakelabs/harvest-server/pkg/wallet"
)

// ChainService binds the TimeSource and TokenPort ports to an Ethereum
// chain: ticks are block numbers and assets are ERC20 contracts moved with
// the custody signer.
type ChainService struct {
	client *wallet.Client
}

func NewChainService(client *wallet.Client) *ChainService {
	return &ChainService{client: client}
}

// Custody returns the account holding staked and reward assets.
func (s *ChainService) Custody() common.Address {
	return s.client.Address()
}

func (s *ChainService) CurrentTick(ctx context.Context) (uint64, error) {
	block, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read block number: %w", err)
	}
	return block, nil
}

func (s *ChainService) BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error) {
	token, err := wallet.NewERC20(asset, s.client.Client)
	if err != nil {
		return nil, err
	}
	return token.BalanceOf(&bind.CallOpts{Context: ctx}, account)
}

func (s *ChainService) Transfer(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	token, err := wallet.NewERC20(asset, s.client.Client)
	if err != nil {
		return err
	}

	opts, err := s.client.TransactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := token.Transfer(opts, to, amount)
	if err != nil {
		return fmt.Errorf("failed to send transfer: %w", err)
	}
	return s.client.WaitMined(ctx, tx)
}

func (s *ChainService) TransferFrom(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	token, err := wallet.NewERC20(asset, s.client.Client)
	if err != nil {
		return err
	}

	opts, err := s.client.TransactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := token.TransferFrom(opts, from, to, amount)
	if err != nil {
		return fmt.Errorf("failed to send transferFrom: %w", err)
	}
	return s.client.WaitMined(ctx, tx)
}
