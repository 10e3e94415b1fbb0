package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

var _ ports.ChainClient = (*EVMClient)(nil)

// Backend is the subset of the JSON-RPC client the wallet needs.
// *ethclient.Client and the simulated backend's client both satisfy it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMClient talks to one EVM network over JSON-RPC.
type EVMClient struct {
	logger  *slog.Logger
	network string
	backend Backend

	ensRegistry *common.Address
	closer      func()
}

// DialEVM connects to rpcURL. An empty ensRegistry disables name resolution.
func DialEVM(ctx context.Context, logger *slog.Logger, network, rpcURL, ensRegistry string) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s node: %w", network, err)
	}

	c := NewEVMClient(logger, network, client, ensRegistry)
	c.closer = client.Close

	return c, nil
}

func NewEVMClient(logger *slog.Logger, network string, backend Backend, ensRegistry string) *EVMClient {
	c := &EVMClient{
		logger:  logger.With("network", network),
		network: network,
		backend: backend,
	}

	if common.IsHexAddress(ensRegistry) {
		registry := common.HexToAddress(ensRegistry)
		c.ensRegistry = &registry
	}

	return c
}

func (c *EVMClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *EVMClient) Balance(ctx context.Context, address string) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// FeeData mirrors the usual wallet heuristic: on London networks
// maxFeePerGas = 2 * baseFee + tip.
func (c *EVMClient) FeeData(ctx context.Context) (*entities.FeeData, error) {
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	fees := &entities.FeeData{GasPrice: gasPrice}
	if head.BaseFee == nil {
		return fees, nil
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}

	fees.MaxPriorityFeePerGas = tip
	fees.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)

	return fees, nil
}

func (c *EVMClient) EstimateGas(ctx context.Context, from, to string, value *big.Int) (uint64, error) {
	return c.estimateGas(ctx, common.HexToAddress(from), common.HexToAddress(to), value, nil)
}

func (c *EVMClient) estimateGas(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (uint64, error) {
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}

	return gas, nil
}

// SendTransfer signs a native-coin transfer and broadcasts it. It returns once the node accepts it.
func (c *EVMClient) SendTransfer(ctx context.Context, privateKey, to string, value *big.Int, gasLimit uint64, fees *entities.FeeData) (string, error) {
	return c.send(ctx, privateKey, common.HexToAddress(to), value, nil, gasLimit, fees)
}

func (c *EVMClient) send(ctx context.Context, privateKey string, to common.Address, value *big.Int, data []byte, gasLimit uint64, fees *entities.FeeData) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain ID: %w", err)
	}

	var txData types.TxData
	if fees.MaxFeePerGas != nil {
		txData = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: fees.MaxPriorityFeePerGas,
			GasFeeCap: fees.MaxFeePerGas,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		}
	} else {
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: fees.GasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		}
	}

	signedTx, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err = c.backend.SendTransaction(ctx, signedTx); err != nil {
		return "", classifySendError(err)
	}

	txHash := signedTx.Hash().Hex()
	c.logger.InfoContext(ctx, "Transaction sent",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", value.String(),
		"nonce", nonce,
		"tx_hash", txHash)

	return txHash, nil
}

// Receipt returns nil without error while the transaction is not mined yet.
func (c *EVMClient) Receipt(ctx context.Context, txHash string) (*entities.Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if isUnmined(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	return &entities.Receipt{
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// Nodes still building their transaction index answer lookups of unknown
// hashes with an error instead of null.
const txIndexingInProgress = "transaction indexing is in progress"

func isUnmined(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), txIndexingInProgress)
}

func classifySendError(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return fmt.Errorf("%w: %w", entities.ErrInsufficientFunds, err)
	}
	return fmt.Errorf("%w: %w", entities.ErrSubmissionRejected, err)
}
