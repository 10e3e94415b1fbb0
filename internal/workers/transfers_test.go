package workers

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/internal/keys"
)

const (
	devPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipient     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// memTransferStore claims rows the way the SQL store does: filtered by
// network, never checked first, at most limit per call.
type memTransferStore struct {
	mu        sync.Mutex
	order     []string
	transfers map[string]*entities.Transfer
	checked   map[string]int
	clock     int
}

func newMemTransferStore() *memTransferStore {
	return &memTransferStore{
		transfers: make(map[string]*entities.Transfer),
		checked:   make(map[string]int),
	}
}

func (s *memTransferStore) InsertTransfer(_ context.Context, transfer *entities.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[transfer.TxHash]; !ok {
		s.order = append(s.order, transfer.TxHash)
	}
	s.transfers[transfer.TxHash] = transfer
	return nil
}

func (s *memTransferStore) FindTransfersByWallet(context.Context, string) ([]entities.Transfer, error) {
	return nil, nil
}

func (s *memTransferStore) ClaimPendingTransfers(_ context.Context, networks []string, limit uint64) ([]entities.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for _, hash := range s.order {
		t := s.transfers[hash]
		if t.Status == entities.TransferPending && slices.Contains(networks, t.Network) {
			due = append(due, hash)
		}
	}
	slices.SortStableFunc(due, func(a, b string) int { return cmp.Compare(s.checked[a], s.checked[b]) })
	if uint64(len(due)) > limit {
		due = due[:limit]
	}

	s.clock++
	out := make([]entities.Transfer, 0, len(due))
	for _, hash := range due {
		s.checked[hash] = s.clock
		out = append(out, *s.transfers[hash])
	}
	return out, nil
}

func (s *memTransferStore) UpdateTransferStatus(_ context.Context, txHash string, status entities.TransferStatus, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.transfers[txHash]
	t.Status = status
	t.BlockNumber = nil
	if blockNumber > 0 {
		block := int64(blockNumber)
		t.BlockNumber = &block
	}
	return nil
}

func (s *memTransferStore) status(txHash string) entities.TransferStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[txHash].Status
}

func newTracker(t *testing.T, confirmations uint64) (*TransferTracker, *chain.EVMClient, *simulated.Backend, *memTransferStore) {
	t.Helper()

	funds, _ := new(big.Int).SetString("10000000000000000000", 10)
	backend := simulated.NewBackend(types.GenesisAlloc{
		common.HexToAddress(devAddress): {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := chain.NewEVMClient(logger, "ethereum", backend.Client(), "")

	provider, err := keys.NewEthereumProvider("", 0)
	require.NoError(t, err)

	registry, err := chain.NewRegistry("", &chain.Network{Name: "ethereum", Symbol: "ETH", Decimals: 18, Keys: provider, Client: client})
	require.NoError(t, err)

	store := newMemTransferStore()
	tracker, err := NewTransferTracker(logger, registry, store, time.Hour, confirmations, 0)
	require.NoError(t, err)

	return tracker, client, backend, store
}

func submit(t *testing.T, client *chain.EVMClient, store *memTransferStore, network string) string {
	t.Helper()
	ctx := context.Background()

	fees, err := client.FeeData(ctx)
	require.NoError(t, err)

	txHash, err := client.SendTransfer(ctx, devPrivateKey, recipient, big.NewInt(1), 21000, fees)
	require.NoError(t, err)

	require.NoError(t, store.InsertTransfer(ctx, &entities.Transfer{
		TxHash:      txHash,
		Network:     network,
		FromAddress: devAddress,
		ToAddress:   recipient,
		AmountWei:   "1",
		Status:      entities.TransferPending,
		CreatedAt:   time.Now(),
	}))

	return txHash
}

func TestTransferTrackerConfirms(t *testing.T) {
	ctx := context.Background()
	tracker, client, backend, store := newTracker(t, 2)

	txHash := submit(t, client, store, "ethereum")

	settled, err := tracker.checkPending(ctx)
	require.NoError(t, err)
	require.Zero(t, settled, "not mined yet")

	backend.Commit()
	settled, err = tracker.checkPending(ctx)
	require.NoError(t, err)
	require.Zero(t, settled, "mined but not deep enough")
	require.Equal(t, entities.TransferPending, store.status(txHash))

	backend.Commit()
	backend.Commit()
	settled, err = tracker.checkPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, settled)
	require.Equal(t, entities.TransferConfirmed, store.status(txHash))
	require.Equal(t, int64(1), *store.transfers[txHash].BlockNumber)

	settled, err = tracker.checkPending(ctx)
	require.NoError(t, err)
	require.Zero(t, settled)
}

func TestTransferTrackerSkipsDisabledNetworks(t *testing.T) {
	tracker, client, backend, store := newTracker(t, 0)

	txHash := submit(t, client, store, "binance")
	backend.Commit()

	settled, err := tracker.checkPending(context.Background())
	require.NoError(t, err)
	require.Zero(t, settled)
	require.Equal(t, entities.TransferPending, store.status(txHash))
}

func TestTransferTrackerStopsOnCancel(t *testing.T) {
	tracker, _, _, _ := newTracker(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not stop")
	}
}

// neverMined records a pending transfer whose hash no node knows.
func neverMined(t *testing.T, store *memTransferStore, network string, i int, createdAt time.Time) string {
	t.Helper()

	txHash := fmt.Sprintf("0x%064x", i+1)
	require.NoError(t, store.InsertTransfer(context.Background(), &entities.Transfer{
		TxHash:      txHash,
		Network:     network,
		FromAddress: devAddress,
		ToAddress:   recipient,
		AmountWei:   "1",
		Status:      entities.TransferPending,
		CreatedAt:   createdAt,
	}))
	return txHash
}

func TestTransferTrackerIsNotStarvedByStuckTransfers(t *testing.T) {
	ctx := context.Background()
	tracker, client, backend, store := newTracker(t, 2)

	for i := range 100 {
		neverMined(t, store, "binance", i, time.Now())
		neverMined(t, store, "ethereum", 1000+i, time.Now())
	}

	txHash := submit(t, client, store, "ethereum")
	backend.Commit()
	backend.Commit()
	backend.Commit()

	for range 3 {
		_, err := tracker.checkPending(ctx)
		require.NoError(t, err)
	}

	require.Equal(t, entities.TransferConfirmed, store.status(txHash))
}

func TestTransferTrackerExpiresUnminedTransfers(t *testing.T) {
	ctx := context.Background()
	tracker, _, _, store := newTracker(t, 1)
	tracker.pendingTTL = time.Hour

	stale := neverMined(t, store, "ethereum", 1, time.Now().Add(-2*time.Hour))
	fresh := neverMined(t, store, "ethereum", 2, time.Now())

	settled, err := tracker.checkPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, settled)
	require.Equal(t, entities.TransferFailed, store.status(stale))
	require.Nil(t, store.transfers[stale].BlockNumber)
	require.Equal(t, entities.TransferPending, store.status(fresh))
}

func TestNewTransferTrackerRejectsBadSettings(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemTransferStore()

	_, err := NewTransferTracker(logger, nil, store, 0, 1, 0)
	require.Error(t, err)

	_, err = NewTransferTracker(logger, nil, store, -time.Second, 1, 0)
	require.Error(t, err)

	_, err = NewTransferTracker(logger, nil, store, time.Second, 1, -time.Hour)
	require.Error(t, err)
}
