package ports

import (
	"context"
	"math/big"

	"github.com/sand/wallet-accounts/backend/internal/entities"
)

// KeyProvider produces and derives key material for one chain family.
type KeyProvider interface {
	Generate() (*entities.KeyMaterial, error)
	FromPrivateKey(privateKey string) (*entities.KeyMaterial, error)
	FromMnemonic(phrase string) (*entities.KeyMaterial, error)
	ValidAddress(address string) bool
	NormalizeAddress(address string) string
}

// ChainClient is read/write access to a single blockchain network.
type ChainClient interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
	FeeData(ctx context.Context) (*entities.FeeData, error)
	EstimateGas(ctx context.Context, from, to string, value *big.Int) (uint64, error)
	SendTransfer(ctx context.Context, privateKey, to string, value *big.Int, gasLimit uint64, fees *entities.FeeData) (string, error)
	Receipt(ctx context.Context, txHash string) (*entities.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, uint8, error)
	EstimateTokenTransfer(ctx context.Context, from, token, to string, amount *big.Int) (uint64, error)
	SendTokenTransfer(ctx context.Context, privateKey, token, to string, amount *big.Int, gasLimit uint64, fees *entities.FeeData) (string, error)
	ResolveName(ctx context.Context, name string) (string, error)
	LookupAddress(ctx context.Context, address string) (string, error)
}

// Sealer encrypts secrets before they reach the store.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// WalletStore persists wallet records. InsertWallet must report a unique
// address violation as entities.ErrDuplicateAddress.
type WalletStore interface {
	InsertWallet(ctx context.Context, wallet *entities.WalletRecord) error
	FindWalletByAddress(ctx context.Context, address string) (*entities.WalletRecord, error)
	IsWalletTracked(ctx context.Context, address string) (bool, error)
	FindWalletsForUser(ctx context.Context, userID string) ([]entities.WalletRecord, error)
	UpdateWalletName(ctx context.Context, userID, address, name string) (*entities.WalletRecord, error)
}

// TransferStore keeps the history of submitted transfers.
type TransferStore interface {
	InsertTransfer(ctx context.Context, transfer *entities.Transfer) error
	FindTransfersByWallet(ctx context.Context, address string) ([]entities.Transfer, error)
	// ClaimPendingTransfers returns up to limit pending transfers on the given
	// networks, least recently checked first, and marks them as checked.
	ClaimPendingTransfers(ctx context.Context, networks []string, limit uint64) ([]entities.Transfer, error)
	UpdateTransferStatus(ctx context.Context, txHash string, status entities.TransferStatus, blockNumber uint64) error
}
