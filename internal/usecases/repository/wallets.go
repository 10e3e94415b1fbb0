package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/pkg/database"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var walletColumns = []string{
	"id::text AS id",
	"user_id",
	"network",
	"address",
	"encrypted_private_key",
	"encrypted_mnemonic",
	"name",
	"created_at",
	"updated_at",
}

var _ ports.WalletStore = (*WalletsRepository)(nil)

// WalletsRepository handles wallet records.
type WalletsRepository struct {
	logger     *slog.Logger
	db         tx.DBGetter
	transactor *tx.Transactor
}

// NewWalletsRepository creates a new wallet repository.
func NewWalletsRepository(logger *slog.Logger, pg *database.Postgres) *WalletsRepository {
	return &WalletsRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
	}
}

// InsertWallet stores a new wallet and fills in its id and timestamps.
// Addresses are unique regardless of case; a clash returns entities.ErrDuplicateAddress.
func (r *WalletsRepository) InsertWallet(ctx context.Context, wallet *entities.WalletRecord) error {
	id := uuid.New()

	query, args, err := psql.Insert("wallets").
		Columns("id", "user_id", "network", "address", "encrypted_private_key", "encrypted_mnemonic", "name").
		Values(id, wallet.UserID, wallet.Network, wallet.Address, wallet.EncryptedPrivateKey, wallet.EncryptedMnemonic, wallet.Name).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build wallet insert: %w", err)
	}

	err = r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		exists, err := r.IsWalletTracked(ctx, wallet.Address)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", entities.ErrDuplicateAddress, wallet.Address)
		}

		return r.db(ctx).QueryRow(ctx, query, args...).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	})

	if errors.Is(err, entities.ErrDuplicateAddress) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", entities.ErrDuplicateAddress, wallet.Address)
	}
	if err != nil {
		return fmt.Errorf("failed to insert wallet: %w", err)
	}

	wallet.ID = id.String()
	r.logger.Debug("Wallet inserted", "id", wallet.ID, "address", wallet.Address, "user_id", wallet.UserID)

	return nil
}

// FindWalletByAddress retrieves a wallet by its address, ignoring case. A missing wallet is nil, nil.
func (r *WalletsRepository) FindWalletByAddress(ctx context.Context, address string) (*entities.WalletRecord, error) {
	query, args, err := psql.Select(walletColumns...).
		From("wallets").
		Where("LOWER(address) = LOWER(?)", address).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet by address: %w", err)
	}

	wallet, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.WalletRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect wallet row: %w", err)
	}

	return &wallet, nil
}

// IsWalletTracked checks if the given address is already stored.
func (r *WalletsRepository) IsWalletTracked(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM wallets WHERE LOWER(address) = LOWER($1))", address).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if wallet exists: %w", err)
	}
	return exists, nil
}

// FindWalletsForUser returns the user's wallets in insertion order.
func (r *WalletsRepository) FindWalletsForUser(ctx context.Context, userID string) ([]entities.WalletRecord, error) {
	query, args, err := psql.Select(walletColumns...).
		From("wallets").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build wallets query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets by user id: %w", err)
	}

	wallets, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.WalletRecord])
	if err != nil {
		r.logger.Error("failed to collect wallets rows", "error", err)
		return nil, fmt.Errorf("failed to collect user wallets rows: %w", err)
	}

	return wallets, nil
}

// UpdateWalletName renames a wallet owned by userID. It returns nil, nil when no such wallet exists.
func (r *WalletsRepository) UpdateWalletName(ctx context.Context, userID, address, name string) (*entities.WalletRecord, error) {
	query, args, err := psql.Update("wallets").
		Set("name", name).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"user_id": userID}).
		Where("LOWER(address) = LOWER(?)", address).
		Suffix("RETURNING " + strings.Join(walletColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet update: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update wallet name: %w", err)
	}

	wallet, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.WalletRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect wallet row: %w", err)
	}

	return &wallet, nil
}
