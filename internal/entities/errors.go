package entities

import "errors"

var (
	ErrUserRequired        = errors.New("user id is required")
	ErrInvalidSecret       = errors.New("invalid private key or mnemonic")
	ErrInvalidRecipient    = errors.New("invalid recipient address")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidName         = errors.New("invalid wallet name")
	ErrDuplicateAddress    = errors.New("wallet already exists")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrKeyGenerationFailed = errors.New("failed to generate wallet")
	ErrPersistenceFailed   = errors.New("failed to save wallet")
	ErrEstimationFailed    = errors.New("failed to estimate gas")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSubmissionRejected  = errors.New("transaction rejected")
	ErrUnsupportedNetwork  = errors.New("unsupported network")

	ErrNameResolutionUnsupported = errors.New("name resolution is not supported on this network")
)
