package handlers

import (
	"context"
	"iter"

	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/internal/usecases"
)

var _ WalletService = (*usecases.WalletService)(nil)

type WalletService interface {
	CreateAccount(ctx context.Context, userID string, opts ...usecases.AccountOption) (*entities.WalletAccount, *entities.KeyReveal, error)
	ImportAccount(ctx context.Context, userID, secret string, kind entities.SecretKind, opts ...usecases.AccountOption) (*entities.WalletAccount, error)
	ListAccounts(ctx context.Context, userID string) (iter.Seq[entities.WalletAccount], error)
	GetAccount(ctx context.Context, userID, address string) (*entities.WalletAccount, error)
	RenameAccount(ctx context.Context, userID, address, name string) (*entities.WalletAccount, error)
}
