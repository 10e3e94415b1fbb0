package entities

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRequest is an ephemeral send order; it is never persisted as-is.
type TransferRequest struct {
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	Memo        string
}

// TransactionHandle identifies a submitted transfer. Submission does not wait for confirmation.
type TransactionHandle struct {
	Hash        string          `json:"tx_hash"`
	Network     string          `json:"network"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Transfer represents a submitted transfer in our system.
type Transfer struct {
	ID          int64          `db:"id"           json:"id"`
	TxHash      string         `db:"tx_hash"      json:"tx_hash"`
	Network     string         `db:"network"      json:"network"`
	FromAddress string         `db:"from_address" json:"from"`
	ToAddress   string         `db:"to_address"   json:"to"`
	AmountWei   string         `db:"amount_wei"   json:"amount_wei"`
	Token       *string        `db:"token"        json:"token,omitempty"` // ERC-20 contract, nil for native coin
	Memo        *string        `db:"memo"         json:"memo,omitempty"`
	Status      TransferStatus `db:"status"       json:"status"`
	BlockNumber *int64         `db:"block_number" json:"block_number,omitempty"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"   json:"updated_at"`
}

// FeeData is the network's current fee market. The EIP-1559 fields are nil on legacy networks.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// EffectivePrice is the per-gas price a transfer is budgeted at.
func (f *FeeData) EffectivePrice() *big.Int {
	if f.MaxFeePerGas != nil {
		return f.MaxFeePerGas
	}
	return f.GasPrice
}

type FeeEstimate struct {
	Network              string          `json:"network"`
	GasLimit             uint64          `json:"gas_limit"`
	GasPriceWei          string          `json:"gas_price_wei"`
	MaxFeePerGasWei      string          `json:"max_fee_per_gas_wei,omitempty"`
	MaxPriorityFeeGasWei string          `json:"max_priority_fee_per_gas_wei,omitempty"`
	Total                decimal.Decimal `json:"total"`
}

// Receipt is the part of a mined transaction the tracker cares about.
type Receipt struct {
	Success     bool
	BlockNumber uint64
}

type NetworkInfo struct {
	Name    string `json:"name"`
	ChainID string `json:"chain_id"`
	Symbol  string `json:"symbol"`
	ENS     bool   `json:"ens"`
}

// GasPrice is the current legacy gas price of a network.
type GasPrice struct {
	Network string          `json:"network"`
	Wei     string          `json:"wei"`
	Gwei    decimal.Decimal `json:"gwei"`
}

// TokenBalance is an ERC-20 balance already scaled by the token's decimals.
type TokenBalance struct {
	Token    string          `json:"token"`
	Owner    string          `json:"owner"`
	Balance  decimal.Decimal `json:"balance"`
	Decimals uint8           `json:"decimals"`
}
