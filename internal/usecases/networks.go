package usecases

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sand/wallet-accounts/backend/internal/chain"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

const tokenBalanceConcurrency = 4

// Networks describes every enabled network. A node that cannot report its
// chain id is still listed, with an empty id.
func (s *WalletService) Networks(ctx context.Context) []entities.NetworkInfo {
	names := s.networks.Names()
	infos := make([]entities.NetworkInfo, 0, len(names))

	for _, name := range names {
		network, _ := s.networks.Get(name)

		info := entities.NetworkInfo{Name: network.Name, Symbol: network.Symbol, ENS: network.ENS}
		if chainID, err := network.Client.ChainID(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to get chain ID", "network", name, "error", err)
		} else {
			info.ChainID = chainID.String()
		}

		infos = append(infos, info)
	}

	return infos
}

func (s *WalletService) GasPrice(ctx context.Context, networkName string) (*entities.GasPrice, error) {
	network, err := s.networks.Get(networkName)
	if err != nil {
		return nil, err
	}

	fees, err := network.Client.FeeData(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrEstimationFailed, err)
	}

	return &entities.GasPrice{
		Network: network.Name,
		Wei:     fees.GasPrice.String(),
		Gwei:    FromBaseUnits(fees.GasPrice, gweiDecimals),
	}, nil
}

// TokenBalance reads an ERC-20 balance of a managed wallet on the wallet's network.
func (s *WalletService) TokenBalance(ctx context.Context, address, token string) (*entities.TokenBalance, error) {
	balances, err := s.TokenBalances(ctx, address, token)
	if err != nil {
		return nil, err
	}
	return &balances[0], nil
}

// TokenBalances reads several ERC-20 balances concurrently. Results keep the order of tokens.
func (s *WalletService) TokenBalances(ctx context.Context, address string, tokens ...string) ([]entities.TokenBalance, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no token given", entities.ErrInvalidAddress)
	}

	wallet, err := s.wallets.FindWalletByAddress(ctx, strings.TrimSpace(address))
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

	contracts := make([]string, len(tokens))
	for i, token := range tokens {
		token = strings.TrimSpace(token)
		if !network.Keys.ValidAddress(token) {
			return nil, fmt.Errorf("%w: token %q", entities.ErrInvalidAddress, token)
		}
		contracts[i] = network.Keys.NormalizeAddress(token)
	}

	balances := make([]entities.TokenBalance, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tokenBalanceConcurrency)

	for i, token := range contracts {
		g.Go(func() error {
			raw, decimals, err := network.Client.TokenBalance(gctx, token, wallet.Address)
			if err != nil {
				return fmt.Errorf("token %s: %w", token, err)
			}

			balances[i] = entities.TokenBalance{
				Token:    token,
				Owner:    wallet.Address,
				Balance:  FromBaseUnits(raw, int32(decimals)),
				Decimals: decimals,
			}
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	return balances, nil
}

// ResolveName returns the address behind an ENS name, or "" for unknown names.
func (s *WalletService) ResolveName(ctx context.Context, networkName, name string) (string, error) {
	network, err := s.ensNetwork(networkName)
	if err != nil {
		return "", err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	return network.Client.ResolveName(ctx, name)
}

// LookupAddress returns the verified primary ENS name of an address, or "".
func (s *WalletService) LookupAddress(ctx context.Context, networkName, address string) (string, error) {
	network, err := s.ensNetwork(networkName)
	if err != nil {
		return "", err
	}

	address = strings.TrimSpace(address)
	if !network.Keys.ValidAddress(address) {
		return "", fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
	}

	return network.Client.LookupAddress(ctx, network.Keys.NormalizeAddress(address))
}

func (s *WalletService) ensNetwork(name string) (*chain.Network, error) {
	network, err := s.networks.Get(name)
	if err != nil {
		return nil, err
	}
	if !network.ENS {
		return nil, fmt.Errorf("%w: %s", entities.ErrNameResolutionUnsupported, network.Name)
	}
	return network, nil
}
