package entities

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCreatedName  = "My Wallet"
	DefaultImportedName = "Imported Wallet"
)

// SecretKind tells importAccount how to read the supplied secret.
type SecretKind string

const (
	SecretPrivateKey SecretKind = "privateKey"
	SecretMnemonic   SecretKind = "mnemonic"
)

// WalletRecord is a wallet row as persisted in the wallets table.
type WalletRecord struct {
	ID                  string    `db:"id"`
	UserID              string    `db:"user_id"`
	Network             string    `db:"network"`
	Address             string    `db:"address"`
	EncryptedPrivateKey string    `db:"encrypted_private_key"`
	EncryptedMnemonic   *string   `db:"encrypted_mnemonic"`
	Name                string    `db:"name"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// WalletAccount is the caller-facing view of a wallet. It never carries key material.
type WalletAccount struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Network     string          `json:"network"`
	Address     string          `json:"address"`
	DisplayName string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	HasMnemonic bool            `json:"has_mnemonic"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// View strips the encrypted fields off a record.
func (r *WalletRecord) View() WalletAccount {
	return WalletAccount{
		ID:          r.ID,
		UserID:      r.UserID,
		Network:     r.Network,
		Address:     r.Address,
		DisplayName: r.Name,
		Balance:     decimal.Zero,
		HasMnemonic: r.EncryptedMnemonic != nil,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// KeyMaterial is what a key provider hands back for a new or imported account.
type KeyMaterial struct {
	Address    string
	PrivateKey string
	Mnemonic   string
}

// KeyReveal carries the plaintext secrets of a freshly created account.
// They can be read once; later calls to Consume get nothing.
type KeyReveal struct {
	mu         sync.Mutex
	privateKey string
	mnemonic   string
	consumed   bool
}

func NewKeyReveal(privateKey, mnemonic string) *KeyReveal {
	return &KeyReveal{privateKey: privateKey, mnemonic: mnemonic}
}

// Consume returns the secrets and wipes them from the reveal.
func (r *KeyReveal) Consume() (privateKey, mnemonic string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumed {
		return "", "", false
	}
	privateKey, mnemonic = r.privateKey, r.mnemonic
	r.privateKey, r.mnemonic = "", ""
	r.consumed = true

	return privateKey, mnemonic, true
}

// ShortAddress formats an address for display, e.g. 0x1234...abcd.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
