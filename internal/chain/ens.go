package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sand/wallet-accounts/backend/internal/entities"
)

// MainnetENSRegistry is the ENS registry address on Ethereum mainnet and Sepolia.
const MainnetENSRegistry = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

const ensABI = `[
{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"type":"function"},
{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"type":"function"},
{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

var ens = mustParseABI(ensABI)

// NameHash implements the ENS namehash algorithm (EIP-137).
// Labels are lowercased; full UTS-46 normalisation is not applied.
func NameHash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}

	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}

	return node
}

// ResolveName returns the address an ENS name points to, or "" when it points nowhere.
func (c *EVMClient) ResolveName(ctx context.Context, name string) (string, error) {
	if c.ensRegistry == nil {
		return "", entities.ErrNameResolutionUnsupported
	}

	node := NameHash(name)
	resolver, err := c.resolver(ctx, node)
	if err != nil || resolver == (common.Address{}) {
		return "", err
	}

	out, err := c.call(ctx, ens, resolver, "addr", node)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if len(out) == 0 {
		return "", nil
	}

	addr, ok := out[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return "", nil
	}

	return addr.Hex(), nil
}

// LookupAddress does a reverse lookup and only trusts names that resolve back to the same address.
func (c *EVMClient) LookupAddress(ctx context.Context, address string) (string, error) {
	if c.ensRegistry == nil {
		return "", entities.ErrNameResolutionUnsupported
	}

	addr := common.HexToAddress(address)
	node := NameHash(strings.ToLower(addr.Hex()[2:]) + ".addr.reverse")

	resolver, err := c.resolver(ctx, node)
	if err != nil || resolver == (common.Address{}) {
		return "", err
	}

	out, err := c.call(ctx, ens, resolver, "name", node)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", address, err)
	}
	if len(out) == 0 {
		return "", nil
	}

	name, ok := out[0].(string)
	if !ok || name == "" {
		return "", nil
	}

	forward, err := c.ResolveName(ctx, name)
	if err != nil {
		return "", err
	}
	if forward != addr.Hex() {
		c.logger.WarnContext(ctx, "Reverse record does not resolve back", "address", addr.Hex(), "name", name)
		return "", nil
	}

	return name, nil
}

func (c *EVMClient) resolver(ctx context.Context, node common.Hash) (common.Address, error) {
	out, err := c.call(ctx, ens, *c.ensRegistry, "resolver", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get ENS resolver: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}

	resolver, _ := out[0].(common.Address)
	return resolver, nil
}
