package keys

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

const (
	DefaultDerivationPath = "m/44'/60'/0'/0/0"
	DefaultEntropyBits    = 128
)

var _ ports.KeyProvider = (*EthereumProvider)(nil)

// EthereumProvider derives secp256k1 key material for EVM networks.
// New accounts get a BIP-39 mnemonic and are derived along a BIP-32 path.
type EthereumProvider struct {
	path        []uint32
	entropyBits int
}

func NewEthereumProvider(derivationPath string, entropyBits int) (*EthereumProvider, error) {
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}
	if entropyBits == 0 {
		entropyBits = DefaultEntropyBits
	}

	path, err := ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, err
	}

	if entropyBits < 128 || entropyBits > 256 || entropyBits%32 != 0 {
		return nil, fmt.Errorf("invalid entropy bits: %d", entropyBits)
	}

	return &EthereumProvider{path: path, entropyBits: entropyBits}, nil
}

// Generate creates a fresh mnemonic and derives the account at the configured path.
func (p *EthereumProvider) Generate() (*entities.KeyMaterial, error) {
	entropy, err := bip39.NewEntropy(p.entropyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrKeyGenerationFailed, err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrKeyGenerationFailed, err)
	}

	material, err := p.derive(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrKeyGenerationFailed, err)
	}

	return material, nil
}

// FromPrivateKey accepts a 32-byte hex key with or without the 0x prefix.
func (p *EthereumProvider) FromPrivateKey(privateKey string) (*entities.KeyMaterial, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes hex, got %d chars", entities.ErrInvalidSecret, len(raw))
	}

	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrInvalidSecret, err)
	}

	return &entities.KeyMaterial{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
	}, nil
}

// FromMnemonic validates the word list and checksum and derives the account at the configured path.
func (p *EthereumProvider) FromMnemonic(phrase string) (*entities.KeyMaterial, error) {
	mnemonic := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: bad word list or checksum", entities.ErrInvalidSecret)
	}

	material, err := p.derive(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrInvalidSecret, err)
	}

	return material, nil
}

func (p *EthereumProvider) ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress returns the EIP-55 checksummed form of a hex address.
func (p *EthereumProvider) NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

func (p *EthereumProvider) derive(mnemonic string) (*entities.KeyMaterial, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, err
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	for _, index := range p.path {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key %d: %w", index, err)
		}
	}

	privKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, err
	}

	return &entities.KeyMaterial{
		Address:    crypto.PubkeyToAddress(privKey.PublicKey).Hex(),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(privKey)),
		Mnemonic:   mnemonic,
	}, nil
}
