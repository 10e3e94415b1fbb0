package shared

import (
	"os"
	"strings"
)

const EnvBlockchainDebugMode = "BLOCKCHAIN_DEBUG_MODE"

const (
	NetworkEthereum = "ethereum"
	NetworkBinance  = "binance"
)

var (
	mainnetRPC = map[string]string{
		NetworkEthereum: "https://ethereum-rpc.publicnode.com",
		NetworkBinance:  "https://bsc-dataseed.binance.org/",
	}
	testnetRPC = map[string]string{
		NetworkEthereum: "https://ethereum-sepolia-rpc.publicnode.com",
		NetworkBinance:  "https://data-seed-prebsc-1-s1.binance.org:8545/",
	}
)

// IsBlockchainDebugMode checks if blockchain debug mode is enabled via environment variable
func IsBlockchainDebugMode() bool {
	debugMode := strings.ToLower(os.Getenv(EnvBlockchainDebugMode))
	return debugMode == "true" || debugMode == "1"
}

// DefaultRPCURL returns the public endpoint for network, testnet in debug mode.
func DefaultRPCURL(network string) string {
	if IsBlockchainDebugMode() {
		return testnetRPC[network]
	}
	return mainnetRPC[network]
}
