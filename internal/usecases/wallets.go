package usecases

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"

	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

// WalletService creates, imports and operates custodial wallet accounts.
// It keeps no state of its own; everything lives in the stores and on chain.
type WalletService struct {
	logger    *slog.Logger
	networks  *chain.Registry
	wallets   ports.WalletStore
	transfers ports.TransferStore
	sealer    ports.Sealer
}

func NewWalletService(
	logger *slog.Logger,
	networks *chain.Registry,
	wallets ports.WalletStore,
	transfers ports.TransferStore,
	sealer ports.Sealer,
) *WalletService {
	return &WalletService{
		logger:    logger,
		networks:  networks,
		wallets:   wallets,
		transfers: transfers,
		sealer:    sealer,
	}
}

type accountOptions struct {
	name    string
	network string
}

// AccountOption customises CreateAccount and ImportAccount.
type AccountOption func(*accountOptions)

// WithName sets the display name. Blank names fall back to the default.
func WithName(name string) AccountOption {
	return func(o *accountOptions) {
		if name = strings.TrimSpace(name); name != "" {
			o.name = name
		}
	}
}

// WithNetwork selects the network; empty means the registry default.
func WithNetwork(network string) AccountOption {
	return func(o *accountOptions) {
		o.network = strings.TrimSpace(network)
	}
}

func buildOptions(defaultName string, opts []AccountOption) accountOptions {
	o := accountOptions{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CreateAccount generates fresh key material and stores it encrypted.
// The returned KeyReveal is the only way to see the plaintext secrets.
func (s *WalletService) CreateAccount(ctx context.Context, userID string, opts ...AccountOption) (*entities.WalletAccount, *entities.KeyReveal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, entities.ErrUserRequired
	}

	o := buildOptions(entities.DefaultCreatedName, opts)
	network, err := s.networks.Get(o.network)
	if err != nil {
		return nil, nil, err
	}

	keys, err := network.Keys.Generate()
	if err != nil {
		if !errors.Is(err, entities.ErrKeyGenerationFailed) {
			err = fmt.Errorf("%w: %w", entities.ErrKeyGenerationFailed, err)
		}
		return nil, nil, err
	}

	account, err := s.persist(ctx, userID, network, keys, o.name)
	if err != nil {
		return nil, nil, err
	}

	return account, entities.NewKeyReveal(keys.PrivateKey, keys.Mnemonic), nil
}

// ImportAccount stores an externally generated key or recovery phrase.
func (s *WalletService) ImportAccount(ctx context.Context, userID, secret string, kind entities.SecretKind, opts ...AccountOption) (*entities.WalletAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, entities.ErrUserRequired
	}

	o := buildOptions(entities.DefaultImportedName, opts)
	network, err := s.networks.Get(o.network)
	if err != nil {
		return nil, err
	}

	var keys *entities.KeyMaterial
	switch kind {
	case entities.SecretPrivateKey:
		keys, err = network.Keys.FromPrivateKey(secret)
	case entities.SecretMnemonic:
		keys, err = network.Keys.FromMnemonic(secret)
	default:
		return nil, fmt.Errorf("%w: unknown secret kind %q", entities.ErrInvalidSecret, kind)
	}
	if err != nil {
		if !errors.Is(err, entities.ErrInvalidSecret) {
			err = fmt.Errorf("%w: %w", entities.ErrInvalidSecret, err)
		}
		return nil, err
	}

	return s.persist(ctx, userID, network, keys, o.name)
}

func (s *WalletService) persist(ctx context.Context, userID string, network *chain.Network, keys *entities.KeyMaterial, name string) (*entities.WalletAccount, error) {
	balance := s.balance(ctx, network, keys.Address)

	tracked, err := s.wallets.IsWalletTracked(ctx, keys.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrPersistenceFailed, err)
	}
	if tracked {
		return nil, fmt.Errorf("%w: %s", entities.ErrDuplicateAddress, keys.Address)
	}

	encryptedKey, err := s.sealer.Seal(keys.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrPersistenceFailed, err)
	}

	var encryptedMnemonic *string
	if keys.Mnemonic != "" {
		sealed, err := s.sealer.Seal(keys.Mnemonic)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", entities.ErrPersistenceFailed, err)
		}
		encryptedMnemonic = pointy.String(sealed)
	}

	record := &entities.WalletRecord{
		UserID:              userID,
		Network:             network.Name,
		Address:             keys.Address,
		EncryptedPrivateKey: encryptedKey,
		EncryptedMnemonic:   encryptedMnemonic,
		Name:                name,
	}

	if err = s.wallets.InsertWallet(ctx, record); err != nil {
		if errors.Is(err, entities.ErrDuplicateAddress) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", entities.ErrPersistenceFailed, err)
	}

	s.logger.InfoContext(ctx, "Wallet saved",
		"user_id", userID,
		"network", network.Name,
		"address", record.Address,
		"has_mnemonic", encryptedMnemonic != nil)

	account := record.View()
	account.Balance = balance
	return &account, nil
}

// ListAccounts returns the user's accounts in insertion order. Balances are
// fetched as the sequence is consumed, and the sequence can be ranged over only once.
func (s *WalletService) ListAccounts(ctx context.Context, userID string) (iter.Seq[entities.WalletAccount], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, entities.ErrUserRequired
	}

	records, err := s.wallets.FindWalletsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	var used atomic.Bool
	return func(yield func(entities.WalletAccount) bool) {
		if used.Swap(true) {
			return
		}
		for i := range records {
			if !yield(s.view(ctx, &records[i])) {
				return
			}
		}
	}, nil
}

// GetAccount returns one of the user's accounts. Other users' wallets are reported as not found.
func (s *WalletService) GetAccount(ctx context.Context, userID, address string) (*entities.WalletAccount, error) {
	record, err := s.ownedWallet(ctx, userID, address)
	if err != nil {
		return nil, err
	}

	account := s.view(ctx, record)
	return &account, nil
}

// RenameAccount changes the display name, the only mutable field of an account.
func (s *WalletService) RenameAccount(ctx context.Context, userID, address, name string) (*entities.WalletAccount, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, entities.ErrInvalidName
	}

	record, err := s.ownedWallet(ctx, userID, address)
	if err != nil {
		return nil, err
	}

	record, err = s.wallets.UpdateWalletName(ctx, record.UserID, record.Address, name)
	if err != nil {
		return nil, fmt.Errorf("failed to rename wallet: %w", err)
	}
	if record == nil {
		return nil, entities.ErrWalletNotFound
	}

	account := s.view(ctx, record)
	return &account, nil
}

func (s *WalletService) ownedWallet(ctx context.Context, userID, address string) (*entities.WalletRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, entities.ErrUserRequired
	}

	record, err := s.wallets.FindWalletByAddress(ctx, strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if record == nil || record.UserID != userID {
		return nil, entities.ErrWalletNotFound
	}

	return record, nil
}

func (s *WalletService) view(ctx context.Context, record *entities.WalletRecord) entities.WalletAccount {
	account := record.View()

	network, err := s.networks.Get(record.Network)
	if err != nil {
		s.logger.WarnContext(ctx, "Wallet network is not enabled", "address", record.Address, "network", record.Network)
		return account
	}

	account.Balance = s.balance(ctx, network, record.Address)
	return account
}

// balance is best-effort: failures are logged and read as zero.
func (s *WalletService) balance(ctx context.Context, network *chain.Network, address string) decimal.Decimal {
	wei, err := network.Client.Balance(ctx, address)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to fetch balance",
			"network", network.Name,
			"address", address,
			"error", err)
		return decimal.Zero
	}

	return FromBaseUnits(wei, network.Decimals)
}
