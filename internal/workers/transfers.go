package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

// TransferTracker worker moves recorded transfers out of pending once they
// are mined deep enough. It only reads from the chain.
type TransferTracker struct {
	logger    *slog.Logger
	networks  *chain.Registry
	transfers ports.TransferStore

	// How often pending transfers are checked
	interval time.Duration

	// Blocks on top of the receipt block before a transfer is final
	requiredConfirmations uint64

	// Unmined transfers older than this are marked failed. Zero keeps them pending.
	pendingTTL time.Duration
}

// NewTransferTracker creates a new transfer tracker worker
func NewTransferTracker(
	logger *slog.Logger,
	networks *chain.Registry,
	transfers ports.TransferStore,
	interval time.Duration,
	requiredConfirmations uint64,
	pendingTTL time.Duration,
) (*TransferTracker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("tracker interval must be positive, got %s", interval)
	}
	if pendingTTL < 0 {
		return nil, fmt.Errorf("pending ttl must not be negative, got %s", pendingTTL)
	}

	return &TransferTracker{
		logger:                logger,
		networks:              networks,
		transfers:             transfers,
		interval:              interval,
		requiredConfirmations: requiredConfirmations,
		pendingTTL:            pendingTTL,
	}, nil
}

// Start polls until ctx is cancelled.
func (tt *TransferTracker) Start(ctx context.Context) {
	tt.logger.Info("Starting transfer tracker worker",
		"interval", tt.interval.String(),
		"required_confirmations", tt.requiredConfirmations,
		"pending_ttl", tt.pendingTTL.String())

	if _, err := tt.checkPending(ctx); err != nil {
		tt.logger.Error("Initial transfer check failed", "error", err)
	}

	ticker := time.NewTicker(tt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tt.logger.Info("Transfer tracker worker stopped")
			return
		case <-ticker.C:
			if _, err := tt.checkPending(ctx); err != nil {
				tt.logger.Error("Transfer check failed", "error", err)
			}
		}
	}
}

// checkPending settles one batch of pending transfers and returns how many changed status.
// Each call claims the least recently checked rows, so unmined transfers rotate
// out of the batch instead of blocking newer ones.
func (tt *TransferTracker) checkPending(ctx context.Context) (int, error) {
	pending, err := tt.transfers.ClaimPendingTransfers(ctx, tt.networks.Names(), ports.TransferTrackerBatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		tt.logger.Debug("No pending transfers")
		return 0, nil
	}

	heads := make(map[string]uint64)
	settled := 0

	for _, transfer := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}

		network, err := tt.networks.Get(transfer.Network)
		if err != nil {
			tt.logger.Debug("Skipping transfer on disabled network", "tx_hash", transfer.TxHash, "network", transfer.Network)
			continue
		}

		status, block, ok := tt.settle(ctx, network, transfer, heads)
		if !ok {
			continue
		}

		if err = tt.transfers.UpdateTransferStatus(ctx, transfer.TxHash, status, block); err != nil {
			tt.logger.ErrorContext(ctx, "Failed to update transfer status",
				"error", err,
				"tx_hash", transfer.TxHash,
				"status", status)
			continue
		}

		tt.logger.InfoContext(ctx, "Transfer settled",
			"tx_hash", transfer.TxHash,
			"network", network.Name,
			"status", status,
			"block_number", block,
			"age", time.Since(transfer.CreatedAt).Round(time.Second).String())
		settled++
	}

	return settled, nil
}

// settle reports the final status of a transfer. ok is false while the
// transfer is unmined, too shallow, or the node could not be reached.
func (tt *TransferTracker) settle(ctx context.Context, network *chain.Network, transfer entities.Transfer, heads map[string]uint64) (entities.TransferStatus, uint64, bool) {
	rpcCtx, cancel := context.WithTimeout(ctx, ports.ChainCallTimeout)
	defer cancel()

	receipt, err := network.Client.Receipt(rpcCtx, transfer.TxHash)
	if err != nil {
		tt.logger.ErrorContext(ctx, "Failed to get receipt", "error", err, "tx_hash", transfer.TxHash)
		return "", 0, false
	}
	if receipt == nil {
		if tt.pendingTTL > 0 && time.Since(transfer.CreatedAt) > tt.pendingTTL {
			tt.logger.WarnContext(ctx, "Transfer never mined, giving up",
				"tx_hash", transfer.TxHash,
				"pending_ttl", tt.pendingTTL.String())
			return entities.TransferFailed, 0, true
		}
		return "", 0, false
	}

	head, ok := heads[network.Name]
	if !ok {
		head, err = network.Client.BlockNumber(rpcCtx)
		if err != nil {
			tt.logger.ErrorContext(ctx, "Failed to get current block number", "error", err, "network", network.Name)
			return "", 0, false
		}
		heads[network.Name] = head
	}

	var confirmations uint64
	if head > receipt.BlockNumber {
		confirmations = head - receipt.BlockNumber
	}
	if confirmations < tt.requiredConfirmations {
		tt.logger.DebugContext(ctx, "Waiting for confirmations",
			"tx_hash", transfer.TxHash,
			"confirmations", confirmations,
			"required", tt.requiredConfirmations)
		return "", 0, false
	}

	if !receipt.Success {
		return entities.TransferFailed, receipt.BlockNumber, true
	}
	return entities.TransferConfirmed, receipt.BlockNumber, true
}
