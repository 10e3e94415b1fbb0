package usecases

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/sand/wallet-accounts/backend/internal/entities"
)

const gweiDecimals = 9

// ToBaseUnits converts a chain-native amount into its smallest unit.
// Amounts with more fractional digits than the unit allows are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", entities.ErrInvalidAmount)
	}

	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d decimal places", entities.ErrInvalidAmount, decimals)
	}

	return shifted.BigInt(), nil
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}
