package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.openly.dev/pointy"

	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

// transferPlan is a validated transfer, ready to be estimated or sent.
type transferPlan struct {
	wallet  *entities.WalletRecord
	network *chain.Network
	to      string
	value   *big.Int

	// ERC-20 contract; empty for the native coin. value is then in token base units.
	token string
}

// SendTransaction signs and submits a native-coin transfer. It returns as soon
// as the node accepts the transaction and never retries.
func (s *WalletService) SendTransaction(ctx context.Context, req entities.TransferRequest) (*entities.TransactionHandle, error) {
	plan, err := s.planTransfer(ctx, req, "")
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, plan, req)
}

// SendToken submits transfer(to, amount) to an ERC-20 contract. The amount is
// scaled by the token's decimals and checked against the wallet's token balance.
func (s *WalletService) SendToken(ctx context.Context, token string, req entities.TransferRequest) (*entities.TransactionHandle, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token contract is required", entities.ErrInvalidAddress)
	}

	plan, err := s.planTransfer(ctx, req, token)
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, plan, req)
}

func (s *WalletService) submit(ctx context.Context, plan *transferPlan, req entities.TransferRequest) (*entities.TransactionHandle, error) {
	privateKey, err := s.sealer.Open(plan.wallet.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt wallet key: %w", err)
	}

	gasLimit, fees, err := s.estimate(ctx, plan)
	if err != nil {
		return nil, err
	}

	var txHash string
	if plan.token == "" {
		txHash, err = plan.network.Client.SendTransfer(ctx, privateKey, plan.to, plan.value, gasLimit, fees)
	} else {
		txHash, err = plan.network.Client.SendTokenTransfer(ctx, privateKey, plan.token, plan.to, plan.value, gasLimit, fees)
	}
	if err != nil {
		if !errors.Is(err, entities.ErrInsufficientFunds) && !errors.Is(err, entities.ErrSubmissionRejected) {
			err = fmt.Errorf("%w: %w", entities.ErrSubmissionRejected, err)
		}
		return nil, err
	}

	handle := &entities.TransactionHandle{
		Hash:        txHash,
		Network:     plan.network.Name,
		From:        plan.wallet.Address,
		To:          plan.to,
		Amount:      req.Amount,
		Token:       plan.token,
		SubmittedAt: time.Now().UTC(),
	}

	transfer := &entities.Transfer{
		TxHash:      txHash,
		Network:     plan.network.Name,
		FromAddress: plan.wallet.Address,
		ToAddress:   plan.to,
		AmountWei:   plan.value.String(),
		Status:      entities.TransferPending,
	}
	if plan.token != "" {
		transfer.Token = pointy.String(plan.token)
	}
	if memo := strings.TrimSpace(req.Memo); memo != "" {
		transfer.Memo = pointy.String(memo)
	}

	// The transaction is already broadcast; history is best-effort from here on.
	if err = s.transfers.InsertTransfer(ctx, transfer); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record transfer", "tx_hash", txHash, "error", err)
	}

	return handle, nil
}

// EstimateCost prices a transfer without sending anything.
func (s *WalletService) EstimateCost(ctx context.Context, req entities.TransferRequest) (*entities.FeeEstimate, error) {
	plan, err := s.planTransfer(ctx, req, "")
	if err != nil {
		return nil, err
	}

	gasLimit, fees, err := s.estimate(ctx, plan)
	if err != nil {
		return nil, err
	}

	total := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), fees.EffectivePrice())
	estimate := &entities.FeeEstimate{
		Network:     plan.network.Name,
		GasLimit:    gasLimit,
		GasPriceWei: fees.GasPrice.String(),
		Total:       FromBaseUnits(total, plan.network.Decimals),
	}
	if fees.MaxFeePerGas != nil {
		estimate.MaxFeePerGasWei = fees.MaxFeePerGas.String()
		estimate.MaxPriorityFeeGasWei = fees.MaxPriorityFeePerGas.String()
	}

	return estimate, nil
}

// TransactionHistory lists the transfers this service submitted from or to a
// managed wallet, newest first. Incoming deposits from outside are not indexed.
func (s *WalletService) TransactionHistory(ctx context.Context, address string) ([]entities.Transfer, error) {
	wallet, err := s.wallets.FindWalletByAddress(ctx, strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if wallet == nil {
		return nil, entities.ErrWalletNotFound
	}

	transfers, err := s.transfers.FindTransfersByWallet(ctx, wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to load transfers: %w", err)
	}

	return transfers, nil
}

// planTransfer runs every check that needs no chain access. Cheap checks come
// first so malformed requests never reach the store. A token transfer also
// reads the token's decimals and the wallet's token balance.
func (s *WalletService) planTransfer(ctx context.Context, req entities.TransferRequest, token string) (*transferPlan, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", entities.ErrInvalidAmount)
	}

	to := strings.TrimSpace(req.ToAddress)
	if !s.networks.AnyValidAddress(to) {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidRecipient, req.ToAddress)
	}
	if token != "" && !s.networks.AnyValidAddress(token) {
		return nil, fmt.Errorf("%w: token %q", entities.ErrInvalidAddress, token)
	}

	wallet, err := s.wallets.FindWalletByAddress(ctx, strings.TrimSpace(req.FromAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if wallet == nil {
		return nil, entities.ErrWalletNotFound
	}

	network, err := s.networks.Get(wallet.Network)
	if err != nil {
		return nil, err
	}

	if !network.Keys.ValidAddress(to) {
		return nil, fmt.Errorf("%w: %q is not a %s address", entities.ErrInvalidRecipient, req.ToAddress, network.Name)
	}

	plan := &transferPlan{
		wallet:  wallet,
		network: network,
		to:      network.Keys.NormalizeAddress(to),
	}

	if token == "" {
		if plan.value, err = ToBaseUnits(req.Amount, network.Decimals); err != nil {
			return nil, err
		}
		return plan, nil
	}

	if !network.Keys.ValidAddress(token) {
		return nil, fmt.Errorf("%w: token %q is not a %s address", entities.ErrInvalidAddress, token, network.Name)
	}
	plan.token = network.Keys.NormalizeAddress(token)

	balance, decimals, err := network.Client.TokenBalance(ctx, plan.token, wallet.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrEstimationFailed, err)
	}
	if plan.value, err = ToBaseUnits(req.Amount, int32(decimals)); err != nil {
		return nil, err
	}
	if balance.Cmp(plan.value) < 0 {
		return nil, fmt.Errorf("%w: token balance %s is below %s", entities.ErrInsufficientFunds, balance, plan.value)
	}

	return plan, nil
}

func (s *WalletService) estimate(ctx context.Context, plan *transferPlan) (uint64, *entities.FeeData, error) {
	fees, err := plan.network.Client.FeeData(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", entities.ErrEstimationFailed, err)
	}

	var gasLimit uint64
	if plan.token == "" {
		gasLimit, err = plan.network.Client.EstimateGas(ctx, plan.wallet.Address, plan.to, plan.value)
	} else {
		gasLimit, err = plan.network.Client.EstimateTokenTransfer(ctx, plan.wallet.Address, plan.token, plan.to, plan.value)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", entities.ErrEstimationFailed, err)
	}

	return gasLimit, fees, nil
}
