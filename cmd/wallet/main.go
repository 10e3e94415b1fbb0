package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	cfg "github.com/sand/wallet-accounts/backend/config"
	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/handlers"
	"github.com/sand/wallet-accounts/backend/internal/keys"
	"github.com/sand/wallet-accounts/backend/internal/shared"
	"github.com/sand/wallet-accounts/backend/internal/usecases"
	repository "github.com/sand/wallet-accounts/backend/internal/usecases/repository"
	"github.com/sand/wallet-accounts/backend/internal/workers"
	"github.com/sand/wallet-accounts/backend/pkg/database"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 30
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{
		Level: config.Log.Level,
	}

	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"blockchain_debug", shared.IsBlockchainDebugMode(),
		"server_port", config.HTTP.Port,
		"ethereum_enabled", config.Ethereum.Enabled,
		"binance_enabled", config.Binance.Enabled,
		"tracker_enabled", config.Tracker.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := database.New(ctx, config.DB.DatabaseURL,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
	)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		return
	}
	defer pg.Close()

	logger.Info("Running database migrations", "path", config.App.MigrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, config.App.MigrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		return
	}

	registry, closeNetworks, err := initNetworks(ctx, logger, config)
	if err != nil {
		logger.Error("Failed to set up networks", "error", err)
		return
	}
	defer closeNetworks()

	sealer, err := keys.NewAESSealer(config.Wallet.EncryptionKey)
	if err != nil {
		logger.Error("Invalid wallet encryption key", "error", err)
		return
	}

	walletsRepository := repository.NewWalletsRepository(logger, pg)
	transfersRepository := repository.NewTransfersRepository(logger, pg)

	walletService := usecases.NewWalletService(logger, registry, walletsRepository, transfersRepository, sealer)

	if config.Tracker.Enabled {
		tracker, err := workers.NewTransferTracker(logger, registry, transfersRepository,
			config.Tracker.Interval, config.Tracker.RequiredConfirmations, config.Tracker.PendingTTL)
		if err != nil {
			logger.Error("Invalid transfer tracker settings", "error", err)
			return
		}
		go tracker.Start(ctx)
	}

	router := mux.NewRouter()
	handlers.NewHTTPHandler(logger, walletService, walletService, walletService).RegisterRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   config.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

// initNetworks dials every enabled network and returns the registry with a closer for the RPC clients.
func initNetworks(ctx context.Context, logger *slog.Logger, config *cfg.Config) (*chain.Registry, func(), error) {
	provider, err := keys.NewEthereumProvider(config.Wallet.DerivationPath, config.Wallet.EntropyBits)
	if err != nil {
		return nil, nil, err
	}

	var (
		networks []*chain.Network
		clients  []*chain.EVMClient
	)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for name, nc := range map[string]cfg.Network{
		shared.NetworkEthereum: config.Ethereum,
		shared.NetworkBinance:  config.Binance,
	} {
		if !nc.Enabled {
			continue
		}

		rpcURL := nc.RPCURL
		if rpcURL == "" {
			rpcURL = shared.DefaultRPCURL(name)
		}

		client, err := chain.DialEVM(ctx, logger, name, rpcURL, nc.ENSRegistry)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		clients = append(clients, client)

		networks = append(networks, &chain.Network{
			Name:     name,
			Symbol:   nc.Symbol,
			Decimals: nc.Decimals,
			Keys:     provider,
			Client:   client,
			ENS:      nc.ENSRegistry != "",
		})
		logger.Info("Network enabled", "network", name, "symbol", nc.Symbol, "ens", nc.ENSRegistry != "")
	}

	registry, err := chain.NewRegistry(config.Wallet.DefaultNetwork, networks...)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("network registry: %w", err)
	}

	return registry, closeAll, nil
}
