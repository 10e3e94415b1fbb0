package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/pkg/database"
)

var transferColumns = []string{
	"id",
	"tx_hash",
	"network",
	"from_address",
	"to_address",
	"amount_wei",
	"token",
	"memo",
	"status",
	"block_number",
	"created_at",
	"updated_at",
}

var _ ports.TransferStore = (*TransfersRepository)(nil)

// TransfersRepository keeps the history of transfers submitted by the service.
type TransfersRepository struct {
	logger *slog.Logger
	db     tx.DBGetter
}

func NewTransfersRepository(logger *slog.Logger, pg *database.Postgres) *TransfersRepository {
	return &TransfersRepository{
		logger: logger,
		db:     pg.DBGetter,
	}
}

// InsertTransfer records a submitted transfer. Recording the same hash twice is a no-op.
func (r *TransfersRepository) InsertTransfer(ctx context.Context, transfer *entities.Transfer) error {
	query, args, err := psql.Insert("transfers").
		Columns("tx_hash", "network", "from_address", "to_address", "amount_wei", "token", "memo", "status").
		Values(transfer.TxHash, transfer.Network, transfer.FromAddress, transfer.ToAddress, transfer.AmountWei, transfer.Token, transfer.Memo, transfer.Status).
		Suffix("ON CONFLICT (tx_hash) DO NOTHING RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build transfer insert: %w", err)
	}

	err = r.db(ctx).QueryRow(ctx, query, args...).Scan(&transfer.ID, &transfer.CreatedAt, &transfer.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("Transfer already recorded", "tx_hash", transfer.TxHash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	r.logger.Info("Transfer recorded", "tx_hash", transfer.TxHash, "from", transfer.FromAddress, "amount_wei", transfer.AmountWei)
	return nil
}

// FindTransfersByWallet lists transfers from or to address, newest first.
func (r *TransfersRepository) FindTransfersByWallet(ctx context.Context, address string) ([]entities.Transfer, error) {
	query, args, err := psql.Select(transferColumns...).
		From("transfers").
		Where(sq.Or{
			sq.Expr("LOWER(from_address) = LOWER(?)", address),
			sq.Expr("LOWER(to_address) = LOWER(?)", address),
		}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfers query: %w", err)
	}

	return r.collect(ctx, query, args)
}

// ClaimPendingTransfers picks pending transfers on networks, never checked or
// least recently checked first, and stamps checked_at so the next call moves
// on to other rows.
func (r *TransfersRepository) ClaimPendingTransfers(ctx context.Context, networks []string, limit uint64) ([]entities.Transfer, error) {
	due := sq.Select("id").
		From("transfers").
		Where(sq.Eq{"status": entities.TransferPending, "network": networks}).
		OrderBy("checked_at NULLS FIRST", "id").
		Limit(limit).
		Suffix("FOR UPDATE SKIP LOCKED")

	query, args, err := psql.Update("transfers").
		Set("checked_at", sq.Expr("NOW()")).
		Where(sq.Expr("id IN (?)", due)).
		Suffix("RETURNING " + strings.Join(transferColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending transfers query: %w", err)
	}

	transfers, err := r.collect(ctx, query, args)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(transfers, func(a, b entities.Transfer) int { return cmp.Compare(a.ID, b.ID) })

	return transfers, nil
}

func (r *TransfersRepository) UpdateTransferStatus(ctx context.Context, txHash string, status entities.TransferStatus, blockNumber uint64) error {
	var block *int64
	if blockNumber > 0 {
		n := int64(blockNumber)
		block = &n
	}

	query, args, err := psql.Update("transfers").
		Set("status", status).
		Set("block_number", block).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"tx_hash": txHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build transfer update: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer %s not found", txHash)
	}

	return nil
}

func (r *TransfersRepository) collect(ctx context.Context, query string, args []any) ([]entities.Transfer, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}

	transfers, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.Transfer])
	if err != nil {
		r.logger.Error("failed to collect transfers rows", "error", err)
		return nil, err
	}

	return transfers, nil
}
