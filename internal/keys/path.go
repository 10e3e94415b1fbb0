package keys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tyler-smith/go-bip32"
)

// ParseDerivationPath turns "m/44'/60'/0'/0/0" into BIP-32 child indexes.
func ParseDerivationPath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, fmt.Errorf("invalid derivation path: %q", path)
	}

	indexes := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		part = strings.TrimRight(part, "'h")

		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n >= uint64(bip32.FirstHardenedChild) {
			return nil, fmt.Errorf("invalid derivation path segment %q in %q", part, path)
		}

		index := uint32(n)
		if hardened {
			index += bip32.FirstHardenedChild
		}
		indexes = append(indexes, index)
	}

	return indexes, nil
}
