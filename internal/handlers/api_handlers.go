package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/sand/wallet-accounts/backend/internal/entities"
	"github.com/sand/wallet-accounts/backend/internal/usecases"
)

type HTTPHandler struct {
	logger       *slog.Logger
	wallets      WalletService
	transactions TransactionService
	networks     NetworkService
}

func NewHTTPHandler(logger *slog.Logger, wallets WalletService, transactions TransactionService, networks NetworkService) *HTTPHandler {
	return &HTTPHandler{
		logger:       logger,
		wallets:      wallets,
		transactions: transactions,
		networks:     networks,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Wallets. Fixed paths go before /wallets/{address}.
	router.HandleFunc("/wallets", h.CreateWallet).Methods("POST")
	router.HandleFunc("/wallets", h.ListWallets).Methods("GET")
	router.HandleFunc("/wallets/import", h.ImportWallet).Methods("POST")
	router.HandleFunc("/wallets/transfer", h.Transfer).Methods("POST")
	router.HandleFunc("/wallets/estimate", h.EstimateTransfer).Methods("GET")
	router.HandleFunc("/wallets/{address}", h.GetWallet).Methods("GET")
	router.HandleFunc("/wallets/{address}", h.RenameWallet).Methods("PATCH")
	router.HandleFunc("/wallets/{address}/transactions", h.WalletTransactions).Methods("GET")
	router.HandleFunc("/wallets/{address}/tokens", h.WalletTokens).Methods("GET")
	router.HandleFunc("/wallets/{address}/tokens/transfer", h.TokenTransfer).Methods("POST")

	// Networks
	router.HandleFunc("/networks", h.ListNetworks).Methods("GET")
	router.HandleFunc("/networks/{network}/gas-price", h.GasPrice).Methods("GET")
	router.HandleFunc("/networks/{network}/ens/resolve", h.ResolveName).Methods("GET")
	router.HandleFunc("/networks/{network}/ens/lookup", h.LookupAddress).Methods("GET")
}

type createWalletRequest struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Network string `json:"network"`
}

type createWalletResponse struct {
	Wallet     *entities.WalletAccount `json:"wallet"`
	PrivateKey string                  `json:"private_key"`
	Mnemonic   string                  `json:"mnemonic,omitempty"`
}

func (h *HTTPHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, reveal, err := h.wallets.CreateAccount(r.Context(), req.UserID,
		usecases.WithName(req.Name), usecases.WithNetwork(req.Network))
	if err != nil {
		h.writeError(w, r, "create wallet", err)
		return
	}

	privateKey, mnemonic, _ := reveal.Consume()
	writeJSON(w, http.StatusCreated, createWalletResponse{Wallet: account, PrivateKey: privateKey, Mnemonic: mnemonic})
}

type importWalletRequest struct {
	UserID  string              `json:"user_id"`
	Secret  string              `json:"secret"`
	Kind    entities.SecretKind `json:"kind"`
	Name    string              `json:"name"`
	Network string              `json:"network"`
}

func (h *HTTPHandler) ImportWallet(w http.ResponseWriter, r *http.Request) {
	var req importWalletRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.wallets.ImportAccount(r.Context(), req.UserID, req.Secret, req.Kind,
		usecases.WithName(req.Name), usecases.WithNetwork(req.Network))
	if err != nil {
		h.writeError(w, r, "import wallet", err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

func (h *HTTPHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.wallets.ListAccounts(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, r, "list wallets", err)
		return
	}

	list := slices.Collect(accounts)
	if list == nil {
		list = []entities.WalletAccount{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	account, err := h.wallets.GetAccount(r.Context(), r.URL.Query().Get("user_id"), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, "get wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

type renameWalletRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (h *HTTPHandler) RenameWallet(w http.ResponseWriter, r *http.Request) {
	var req renameWalletRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.wallets.RenameAccount(r.Context(), req.UserID, mux.Vars(r)["address"], req.Name)
	if err != nil {
		h.writeError(w, r, "rename wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

type transferRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

func (h *HTTPHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	handle, err := h.transactions.SendTransaction(r.Context(), entities.TransferRequest{
		FromAddress: req.From,
		ToAddress:   req.To,
		Amount:      req.Amount,
		Memo:        req.Memo,
	})
	if err != nil {
		h.writeError(w, r, "transfer", err)
		return
	}

	h.logger.Info("Transfer submitted",
		"tx_hash", handle.Hash,
		"from", entities.ShortAddress(handle.From),
		"to", entities.ShortAddress(handle.To),
		"amount", handle.Amount.String())

	writeJSON(w, http.StatusAccepted, handle)
}

type tokenTransferRequest struct {
	Token  string          `json:"token"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

// TokenTransfer sends an ERC-20 amount, in whole tokens, from the wallet in the path.
func (h *HTTPHandler) TokenTransfer(w http.ResponseWriter, r *http.Request) {
	var req tokenTransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	handle, err := h.transactions.SendToken(r.Context(), req.Token, entities.TransferRequest{
		FromAddress: mux.Vars(r)["address"],
		ToAddress:   req.To,
		Amount:      req.Amount,
		Memo:        req.Memo,
	})
	if err != nil {
		h.writeError(w, r, "token transfer", err)
		return
	}

	h.logger.Info("Token transfer submitted",
		"tx_hash", handle.Hash,
		"token", handle.Token,
		"from", entities.ShortAddress(handle.From),
		"to", entities.ShortAddress(handle.To),
		"amount", handle.Amount.String())

	writeJSON(w, http.StatusAccepted, handle)
}

func (h *HTTPHandler) EstimateTransfer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		h.writeError(w, r, "estimate transfer", errors.Join(entities.ErrInvalidAmount, err))
		return
	}

	estimate, err := h.transactions.EstimateCost(r.Context(), entities.TransferRequest{
		FromAddress: q.Get("from"),
		ToAddress:   q.Get("to"),
		Amount:      amount,
	})
	if err != nil {
		h.writeError(w, r, "estimate transfer", err)
		return
	}

	writeJSON(w, http.StatusOK, estimate)
}

func (h *HTTPHandler) WalletTransactions(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transactions.TransactionHistory(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, "transaction history", err)
		return
	}

	if transfers == nil {
		transfers = []entities.Transfer{}
	}
	writeJSON(w, http.StatusOK, transfers)
}

// WalletTokens accepts repeated or comma separated token parameters.
func (h *HTTPHandler) WalletTokens(w http.ResponseWriter, r *http.Request) {
	var tokens []string
	for _, param := range r.URL.Query()["token"] {
		for _, token := range strings.Split(param, ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens = append(tokens, token)
			}
		}
	}

	balances, err := h.transactions.TokenBalances(r.Context(), mux.Vars(r)["address"], tokens...)
	if err != nil {
		h.writeError(w, r, "token balances", err)
		return
	}

	writeJSON(w, http.StatusOK, balances)
}

func (h *HTTPHandler) ListNetworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.networks.Networks(r.Context()))
}

func (h *HTTPHandler) GasPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.networks.GasPrice(r.Context(), mux.Vars(r)["network"])
	if err != nil {
		h.writeError(w, r, "gas price", err)
		return
	}

	writeJSON(w, http.StatusOK, price)
}

func (h *HTTPHandler) ResolveName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	address, err := h.networks.ResolveName(r.Context(), mux.Vars(r)["network"], name)
	if err != nil {
		h.writeError(w, r, "resolve name", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": name, "address": address})
}

func (h *HTTPHandler) LookupAddress(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")

	name, err := h.networks.LookupAddress(r.Context(), mux.Vars(r)["network"], address)
	if err != nil {
		h.writeError(w, r, "lookup address", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": name, "address": address})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Debug("Invalid request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

// errorStatuses is checked in order; the first sentinel matched wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{entities.ErrUserRequired, http.StatusBadRequest},
	{entities.ErrInvalidSecret, http.StatusBadRequest},
	{entities.ErrInvalidRecipient, http.StatusBadRequest},
	{entities.ErrInvalidAmount, http.StatusBadRequest},
	{entities.ErrInvalidAddress, http.StatusBadRequest},
	{entities.ErrInvalidName, http.StatusBadRequest},
	{entities.ErrUnsupportedNetwork, http.StatusBadRequest},
	{entities.ErrNameResolutionUnsupported, http.StatusBadRequest},
	{entities.ErrWalletNotFound, http.StatusNotFound},
	{entities.ErrDuplicateAddress, http.StatusConflict},
	{entities.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{entities.ErrEstimationFailed, http.StatusBadGateway},
	{entities.ErrSubmissionRejected, http.StatusBadGateway},
	{entities.ErrKeyGenerationFailed, http.StatusInternalServerError},
	{entities.ErrPersistenceFailed, http.StatusInternalServerError},
}

// writeError answers with the sentinel's short message. The full error only goes to the log.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := http.StatusInternalServerError, "internal error"
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			status, message = e.status, e.err.Error()
			break
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "op", op, "status", status, "error", err)
	} else {
		h.logger.InfoContext(r.Context(), "Request rejected", "op", op, "status", status, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
