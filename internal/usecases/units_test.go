package usecases

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sand/wallet-accounts/backend/internal/entities"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{"0.000000000000000001", "1"},
		{"123.456", "123456000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			wei, err := ToBaseUnits(decimal.RequireFromString(tt.amount), 18)
			require.NoError(t, err)
			require.Equal(t, tt.want, wei.String())
		})
	}
}

func TestToBaseUnitsRejects(t *testing.T) {
	for _, amount := range []string{"0", "-1", "0.0000000000000000001"} {
		_, err := ToBaseUnits(decimal.RequireFromString(amount), 18)
		require.ErrorIs(t, err, entities.ErrInvalidAmount, amount)
	}
}

func TestFromBaseUnits(t *testing.T) {
	require.True(t, FromBaseUnits(big.NewInt(1_500_000_000), gweiDecimals).Equal(decimal.RequireFromString("1.5")))
	require.True(t, FromBaseUnits(nil, 18).IsZero())
}
