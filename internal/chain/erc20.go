package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/sand/wallet-accounts/backend/internal/entities"
)

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20 = mustParseABI(erc20ABI)

// TokenBalance reads balanceOf(owner) and decimals() of an ERC-20 contract.
func (c *EVMClient) TokenBalance(ctx context.Context, token, owner string) (*big.Int, uint8, error) {
	tokenAddr := common.HexToAddress(token)

	out, err := c.call(ctx, erc20, tokenAddr, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("token %s returned no balance", token)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}

	out, err = c.call(ctx, erc20, tokenAddr, "decimals")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get token decimals: %w", err)
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("token %s returned no decimals", token)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected decimals result type %T", out[0])
	}

	return balance, decimals, nil
}

// EstimateTokenTransfer prices transfer(to, amount) sent from the given wallet.
func (c *EVMClient) EstimateTokenTransfer(ctx context.Context, from, token, to string, amount *big.Int) (uint64, error) {
	data, err := erc20.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return 0, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return c.estimateGas(ctx, common.HexToAddress(from), common.HexToAddress(token), big.NewInt(0), data)
}

// SendTokenTransfer signs a call to the token's transfer(to, amount) and broadcasts it.
// amount is in the token's base units.
func (c *EVMClient) SendTokenTransfer(ctx context.Context, privateKey, token, to string, amount *big.Int, gasLimit uint64, fees *entities.FeeData) (string, error) {
	data, err := erc20.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}
	return c.send(ctx, privateKey, common.HexToAddress(token), big.NewInt(0), data, gasLimit, fees)
}

// call runs a read-only contract method. An empty return (no code at the
// address, or a missing method) comes back as nil values.
func (c *EVMClient) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	return contract.Unpack(method, raw)
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}
