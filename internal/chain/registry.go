package chain

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/sand/wallet-accounts/backend/internal/core/ports"
	"github.com/sand/wallet-accounts/backend/internal/entities"
)

// Network binds the key provider and chain client of one supported network.
type Network struct {
	Name     string
	Symbol   string
	Decimals int32
	Keys     ports.KeyProvider
	Client   ports.ChainClient
	ENS      bool
}

// Registry is built once at start-up and read-only afterwards.
type Registry struct {
	defaultName string
	networks    map[string]*Network
}

// NewRegistry registers networks; the first one is the default unless defaultName is set.
func NewRegistry(defaultName string, networks ...*Network) (*Registry, error) {
	if len(networks) == 0 {
		return nil, errors.New("no networks configured")
	}

	r := &Registry{networks: make(map[string]*Network, len(networks))}
	for _, n := range networks {
		if n.Keys == nil || n.Client == nil {
			return nil, fmt.Errorf("network %s: keys and client are required", n.Name)
		}
		if _, ok := r.networks[n.Name]; ok {
			return nil, fmt.Errorf("network %s registered twice", n.Name)
		}
		r.networks[n.Name] = n
	}

	if defaultName == "" {
		defaultName = networks[0].Name
	}
	if _, ok := r.networks[defaultName]; !ok {
		return nil, fmt.Errorf("default network %s: %w", defaultName, entities.ErrUnsupportedNetwork)
	}
	r.defaultName = defaultName

	return r, nil
}

// Get returns the named network; an empty name selects the default.
func (r *Registry) Get(name string) (*Network, error) {
	if name == "" {
		name = r.defaultName
	}
	n, ok := r.networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrUnsupportedNetwork, name)
	}
	return n, nil
}

func (r *Registry) Default() *Network {
	return r.networks[r.defaultName]
}

// Names lists registered networks in lexical order.
func (r *Registry) Names() []string {
	names := maps.Keys(r.networks)
	slices.Sort(names)
	return names
}

// AnyValidAddress reports whether address is well formed on at least one network.
func (r *Registry) AnyValidAddress(address string) bool {
	for _, n := range r.networks {
		if n.Keys.ValidAddress(address) {
			return true
		}
	}
	return false
}
