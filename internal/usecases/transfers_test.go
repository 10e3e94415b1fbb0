package usecases

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-accounts/backend/internal/entities"
)

func newFundedEnv(t *testing.T) *testEnv {
	t.Helper()

	env := newTestEnv(t)
	_, err := env.service.ImportAccount(context.Background(), "u1", devPrivateKey, entities.SecretPrivateKey)
	require.NoError(t, err)

	return env
}

func transfer(amount string) entities.TransferRequest {
	return entities.TransferRequest{
		FromAddress: devAddress,
		ToAddress:   recipient,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestSendTransaction(t *testing.T) {
	env := newFundedEnv(t)

	req := transfer("0.25")
	req.Memo = "rent"

	handle, err := env.service.SendTransaction(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, env.chain.txHash, handle.Hash)
	require.Equal(t, "ethereum", handle.Network)
	require.Equal(t, devAddress, handle.From)
	require.Equal(t, recipient, handle.To)
	require.True(t, handle.Amount.Equal(decimal.RequireFromString("0.25")))

	require.Len(t, env.chain.sent, 1)
	sent := env.chain.sent[0]
	require.Equal(t, devPrivateKey, sent.privateKey)
	require.Equal(t, "250000000000000000", sent.value.String())
	require.Equal(t, uint64(21000), sent.gasLimit)

	require.Len(t, env.transfers.transfers, 1)
	recorded := env.transfers.transfers[0]
	require.Equal(t, entities.TransferPending, recorded.Status)
	require.Equal(t, "250000000000000000", recorded.AmountWei)
	require.NotNil(t, recorded.Memo)
	require.Equal(t, "rent", *recorded.Memo)
}

func TestSendTransactionNormalizesRecipient(t *testing.T) {
	env := newFundedEnv(t)

	req := transfer("1")
	req.ToAddress = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

	handle, err := env.service.SendTransaction(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, recipient, handle.To)
	require.Nil(t, env.transfers.transfers[0].Memo)
}

func TestSendTransactionValidatesBeforeIO(t *testing.T) {
	tests := []struct {
		name    string
		req     entities.TransferRequest
		wantErr error
	}{
		{"zero amount", transfer("0"), entities.ErrInvalidAmount},
		{"negative amount", transfer("-1"), entities.ErrInvalidAmount},
		{"not an address", entities.TransferRequest{FromAddress: devAddress, ToAddress: "not-an-address", Amount: decimal.NewFromInt(1)}, entities.ErrInvalidRecipient},
		{"empty recipient", entities.TransferRequest{FromAddress: devAddress, Amount: decimal.NewFromInt(1)}, entities.ErrInvalidRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newFundedEnv(t)
			calls, lookups := env.chain.totalCalls(), env.wallets.lookups

			_, err := env.service.SendTransaction(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, calls, env.chain.totalCalls(), "no chain call")
			require.Equal(t, lookups, env.wallets.lookups, "no store access")
			require.Zero(t, env.chain.count("SendTransfer"))
		})
	}
}

func TestSendTransactionRejectsSubWeiAmount(t *testing.T) {
	env := newFundedEnv(t)
	calls := env.chain.totalCalls()

	_, err := env.service.SendTransaction(context.Background(), transfer("0.0000000000000000001"))
	require.ErrorIs(t, err, entities.ErrInvalidAmount)
	require.Equal(t, calls, env.chain.totalCalls())
}

func TestSendTransactionWalletNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.SendTransaction(context.Background(), transfer("1"))
	require.ErrorIs(t, err, entities.ErrWalletNotFound)
	require.Zero(t, env.chain.totalCalls())
}

func TestSendTransactionEstimationFailure(t *testing.T) {
	for _, breakChain := range []func(*fakeChain){
		func(c *fakeChain) { c.feeErr = errors.New("timeout") },
		func(c *fakeChain) { c.gasErr = errors.New("execution reverted") },
	} {
		env := newFundedEnv(t)
		breakChain(env.chain)

		_, err := env.service.SendTransaction(context.Background(), transfer("1"))
		require.ErrorIs(t, err, entities.ErrEstimationFailed)
		require.Zero(t, env.chain.count("SendTransfer"), "nothing is sent")
		require.Empty(t, env.transfers.transfers)
	}
}

func TestSendTransactionSubmissionErrors(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		wantErr error
	}{
		{"insufficient funds", entities.ErrInsufficientFunds, entities.ErrInsufficientFunds},
		{"rejected", entities.ErrSubmissionRejected, entities.ErrSubmissionRejected},
		{"unclassified", errors.New("nonce too low"), entities.ErrSubmissionRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newFundedEnv(t)
			env.chain.sendErr = tt.sendErr

			_, err := env.service.SendTransaction(context.Background(), transfer("1"))
			require.ErrorIs(t, err, tt.wantErr)
			require.Contains(t, err.Error(), tt.sendErr.Error())
			require.Empty(t, env.transfers.transfers)
		})
	}
}

func TestSendTransactionHistoryFailureIsNotSurfaced(t *testing.T) {
	env := newFundedEnv(t)
	env.transfers.insertErr = errors.New("disk full")

	handle, err := env.service.SendTransaction(context.Background(), transfer("1"))
	require.NoError(t, err)
	require.NotEmpty(t, handle.Hash)
}

func TestSendTransactionUndecryptableKey(t *testing.T) {
	env := newFundedEnv(t)
	env.wallets.records[0].EncryptedPrivateKey = "AAAA"

	_, err := env.service.SendTransaction(context.Background(), transfer("1"))
	require.Error(t, err)
	require.Zero(t, env.chain.count("SendTransfer"))
}

func TestEstimateCost(t *testing.T) {
	env := newFundedEnv(t)

	estimate, err := env.service.EstimateCost(context.Background(), transfer("1"))
	require.NoError(t, err)
	require.Equal(t, "ethereum", estimate.Network)
	require.Equal(t, uint64(21000), estimate.GasLimit)
	require.Equal(t, "1000000000", estimate.GasPriceWei)
	require.Equal(t, "2000000000", estimate.MaxFeePerGasWei)
	require.Equal(t, "100000000", estimate.MaxPriorityFeeGasWei)
	require.True(t, estimate.Total.Equal(decimal.RequireFromString("0.000042")), estimate.Total.String())
	require.Zero(t, env.chain.count("SendTransfer"))
}

func TestEstimateCostLegacyFees(t *testing.T) {
	env := newFundedEnv(t)
	env.chain.fees = &entities.FeeData{GasPrice: big.NewInt(3_000_000_000)}

	estimate, err := env.service.EstimateCost(context.Background(), transfer("1"))
	require.NoError(t, err)
	require.Empty(t, estimate.MaxFeePerGasWei)
	require.True(t, estimate.Total.Equal(decimal.RequireFromString("0.000063")))
}

func TestEstimateCostFailure(t *testing.T) {
	env := newFundedEnv(t)
	env.chain.gasErr = errors.New("boom")

	_, err := env.service.EstimateCost(context.Background(), transfer("1"))
	require.ErrorIs(t, err, entities.ErrEstimationFailed)

	_, err = env.service.EstimateCost(context.Background(), transfer("0"))
	require.ErrorIs(t, err, entities.ErrInvalidAmount)
}

func TestTransactionHistory(t *testing.T) {
	ctx := context.Background()
	env := newFundedEnv(t)

	for _, amount := range []string{"1", "2"} {
		_, err := env.service.SendTransaction(ctx, transfer(amount))
		require.NoError(t, err)
	}

	history, err := env.service.TransactionHistory(ctx, devAddress)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "2000000000000000000", history[0].AmountWei, "newest first")

	_, err = env.service.TransactionHistory(ctx, recipient)
	require.ErrorIs(t, err, entities.ErrWalletNotFound)
}

func TestSendToken(t *testing.T) {
	env := newFundedEnv(t)
	env.chain.tokens[usdt] = big.NewInt(20_000_000)

	req := transfer("12.5")
	req.Memo = "invoice 7"

	handle, err := env.service.SendToken(context.Background(), "0xdac17f958d2ee523a2206206994597c13d831ec7", req)
	require.NoError(t, err)
	require.Equal(t, usdt, handle.Token)
	require.Equal(t, recipient, handle.To)

	require.Equal(t, 0, env.chain.count("SendTransfer"))
	require.Len(t, env.chain.sent, 1)
	sent := env.chain.sent[0]
	require.Equal(t, usdt, sent.token)
	require.Equal(t, "12500000", sent.value.String(), "scaled by the token's 6 decimals")
	require.Equal(t, uint64(63000), sent.gasLimit)

	recorded := env.transfers.transfers[0]
	require.Equal(t, "12500000", recorded.AmountWei)
	require.Equal(t, usdt, *recorded.Token)
	require.Equal(t, "invoice 7", *recorded.Memo)
}

func TestSendTokenRejects(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		amount  string
		wantErr error
	}{
		{"missing token", "", "1", entities.ErrInvalidAddress},
		{"malformed token", "usdt", "1", entities.ErrInvalidAddress},
		{"more decimals than the token", usdt, "0.0000001", entities.ErrInvalidAmount},
		{"above token balance", usdt, "21", entities.ErrInsufficientFunds},
		{"contract read fails", usdc, "1", entities.ErrEstimationFailed},
		{"zero amount", usdt, "0", entities.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newFundedEnv(t)
			env.chain.tokens[usdt] = big.NewInt(20_000_000)

			_, err := env.service.SendToken(context.Background(), tt.token, transfer(tt.amount))
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, 0, env.chain.count("SendTokenTransfer"))
			require.Empty(t, env.transfers.transfers)
		})
	}
}
