package usecases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/internal/keys"
)

const (
	testEncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

	devMnemonic   = "test test test test test test test test test test test junk"
	devPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipient     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// memWalletStore enforces address uniqueness the way the unique index does.
type memWalletStore struct {
	mu        sync.Mutex
	records   []entities.WalletRecord
	inserts   int
	lookups   int
	insertErr error

	// skipPrecheck makes IsWalletTracked always miss, as when two imports race.
	skipPrecheck bool
}

func (s *memWalletStore) InsertWallet(_ context.Context, wallet *entities.WalletRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, r := range s.records {
		if strings.EqualFold(r.Address, wallet.Address) {
			return entities.ErrDuplicateAddress
		}
	}

	now := time.Now().UTC()
	wallet.ID = uuid.NewString()
	wallet.CreatedAt, wallet.UpdatedAt = now, now
	s.records = append(s.records, *wallet)
	return nil
}

func (s *memWalletStore) FindWalletByAddress(_ context.Context, address string) (*entities.WalletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++
	for _, r := range s.records {
		if strings.EqualFold(r.Address, address) {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memWalletStore) IsWalletTracked(ctx context.Context, address string) (bool, error) {
	if s.skipPrecheck {
		return false, nil
	}
	r, err := s.FindWalletByAddress(ctx, address)
	return r != nil, err
}

func (s *memWalletStore) FindWalletsForUser(_ context.Context, userID string) ([]entities.WalletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entities.WalletRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memWalletStore) UpdateWalletName(_ context.Context, userID, address, name string) (*entities.WalletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].UserID == userID && strings.EqualFold(s.records[i].Address, address) {
			s.records[i].Name = name
			s.records[i].UpdatedAt = time.Now().UTC()
			r := s.records[i]
			return &r, nil
		}
	}
	return nil, nil
}

type memTransferStore struct {
	mu        sync.Mutex
	transfers []entities.Transfer
	insertErr error
}

func (s *memTransferStore) InsertTransfer(_ context.Context, transfer *entities.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return s.insertErr
	}
	transfer.ID = int64(len(s.transfers) + 1)
	transfer.CreatedAt = time.Now().UTC()
	s.transfers = append(s.transfers, *transfer)
	return nil
}

func (s *memTransferStore) FindTransfersByWallet(_ context.Context, address string) ([]entities.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entities.Transfer
	for _, t := range slices.Backward(s.transfers) {
		if strings.EqualFold(t.FromAddress, address) || strings.EqualFold(t.ToAddress, address) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTransferStore) ClaimPendingTransfers(context.Context, []string, uint64) ([]entities.Transfer, error) {
	return nil, errors.New("not used")
}

func (s *memTransferStore) UpdateTransferStatus(context.Context, string, entities.TransferStatus, uint64) error {
	return errors.New("not used")
}

type sentTransfer struct {
	privateKey string
	token      string
	to         string
	value      *big.Int
	gasLimit   uint64
}

// fakeChain records every call so tests can assert that no I/O happened.
type fakeChain struct {
	mu    sync.Mutex
	calls map[string]int

	balance    *big.Int
	balanceErr error
	fees       *entities.FeeData
	feeErr     error
	gas        uint64
	gasErr     error
	txHash     string
	sendErr    error
	sent       []sentTransfer
	tokens     map[string]*big.Int
	names      map[string]string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		calls:   make(map[string]int),
		balance: big.NewInt(0),
		fees: &entities.FeeData{
			GasPrice:             big.NewInt(1_000_000_000),
			MaxFeePerGas:         big.NewInt(2_000_000_000),
			MaxPriorityFeePerGas: big.NewInt(100_000_000),
		},
		gas:    21000,
		txHash: "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
		tokens: make(map[string]*big.Int),
		names:  make(map[string]string),
	}
}

func (c *fakeChain) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
}

func (c *fakeChain) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *fakeChain) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *fakeChain) Balance(context.Context, string) (*big.Int, error) {
	c.record("Balance")
	return c.balance, c.balanceErr
}

func (c *fakeChain) FeeData(context.Context) (*entities.FeeData, error) {
	c.record("FeeData")
	return c.fees, c.feeErr
}

func (c *fakeChain) EstimateGas(context.Context, string, string, *big.Int) (uint64, error) {
	c.record("EstimateGas")
	return c.gas, c.gasErr
}

func (c *fakeChain) SendTransfer(_ context.Context, privateKey, to string, value *big.Int, gasLimit uint64, _ *entities.FeeData) (string, error) {
	c.record("SendTransfer")
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, sentTransfer{privateKey: privateKey, to: to, value: value, gasLimit: gasLimit})
	c.mu.Unlock()
	return c.txHash, nil
}

func (c *fakeChain) EstimateTokenTransfer(context.Context, string, string, string, *big.Int) (uint64, error) {
	c.record("EstimateTokenTransfer")
	return c.gas * 3, c.gasErr
}

func (c *fakeChain) SendTokenTransfer(_ context.Context, privateKey, token, to string, amount *big.Int, gasLimit uint64, _ *entities.FeeData) (string, error) {
	c.record("SendTokenTransfer")
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, sentTransfer{privateKey: privateKey, token: token, to: to, value: amount, gasLimit: gasLimit})
	c.mu.Unlock()
	return c.txHash, nil
}

func (c *fakeChain) Receipt(context.Context, string) (*entities.Receipt, error) {
	c.record("Receipt")
	return nil, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.record("BlockNumber")
	return 1, nil
}

func (c *fakeChain) ChainID(context.Context) (*big.Int, error) {
	c.record("ChainID")
	return big.NewInt(1), nil
}

func (c *fakeChain) TokenBalance(_ context.Context, token, _ string) (*big.Int, uint8, error) {
	c.record("TokenBalance")
	balance, ok := c.tokens[token]
	if !ok {
		return nil, 0, errors.New("execution reverted")
	}
	return balance, 6, nil
}

func (c *fakeChain) ResolveName(_ context.Context, name string) (string, error) {
	c.record("ResolveName")
	return c.names[name], nil
}

func (c *fakeChain) LookupAddress(_ context.Context, address string) (string, error) {
	c.record("LookupAddress")
	for name, addr := range c.names {
		if addr == address {
			return name, nil
		}
	}
	return "", nil
}

type testEnv struct {
	service   *WalletService
	wallets   *memWalletStore
	transfers *memTransferStore
	chain     *fakeChain
	sealer    *keys.AESSealer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider, err := keys.NewEthereumProvider("", 0)
	require.NoError(t, err)

	sealer, err := keys.NewAESSealer(testEncryptionKey)
	require.NoError(t, err)

	env := &testEnv{
		wallets:   &memWalletStore{},
		transfers: &memTransferStore{},
		chain:     newFakeChain(),
		sealer:    sealer,
	}

	registry, err := chain.NewRegistry("ethereum",
		&chain.Network{Name: "ethereum", Symbol: "ETH", Decimals: 18, Keys: provider, Client: env.chain, ENS: true},
		&chain.Network{Name: "binance", Symbol: "BNB", Decimals: 18, Keys: provider, Client: env.chain},
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.service = NewWalletService(logger, registry, env.wallets, env.transfers, sealer)

	return env
}
