package handlers

import (
	"context"

	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/internal/usecases"
)

var _ TransactionService = (*usecases.WalletService)(nil)

type TransactionService interface {
	SendTransaction(ctx context.Context, req entities.TransferRequest) (*entities.TransactionHandle, error)
	SendToken(ctx context.Context, token string, req entities.TransferRequest) (*entities.TransactionHandle, error)
	EstimateCost(ctx context.Context, req entities.TransferRequest) (*entities.FeeEstimate, error)
	TransactionHistory(ctx context.Context, address string) ([]entities.Transfer, error)
	TokenBalances(ctx context.Context, address string, tokens ...string) ([]entities.TokenBalance, error)
}

var _ NetworkService = (*usecases.WalletService)(nil)

type NetworkService interface {
	Networks(ctx context.Context) []entities.NetworkInfo
	GasPrice(ctx context.Context, network string) (*entities.GasPrice, error)
	ResolveName(ctx context.Context, network, name string) (string, error)
	LookupAddress(ctx context.Context, network, address string) (string, error)
}
