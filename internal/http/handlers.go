package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bankos/internal/core"
	"bankos/internal/log"
)

// Write requests arrive in the snake_case dialect the upstream collaborators
// speak; responses use the camelCase entity representations.

type createClientRequest struct {
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	LifeStage   string `json:"life_stage"`
}

type openAccountRequest struct {
	ClientID    string      `json:"client_id"`
	ProductType string      `json:"product_type"`
	Status      string      `json:"status"`
	Balance     *core.Money `json:"balance"`
	Currency    string      `json:"currency"`
}

type createTransactionRequest struct {
	AccountID   string               `json:"account_id"`
	Type        core.TransactionType `json:"type"`
	Amount      core.Money           `json:"amount"`
	Description string               `json:"description"`
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customer, err := s.transactions.RegisterCustomer(r.Context(), core.Customer{
		DisplayName: strings.TrimSpace(req.DisplayName),
		Status:      req.Status,
		LifeStage:   req.LifeStage,
	})
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	customer, err := s.store.GetCustomer(r.Context(), id)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	accounts, err := s.store.ListAccountsByCustomer(r.Context(), id)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		core.Customer
		Accounts []core.Account `json:"accounts"`
	}{customer, accounts})
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account := core.Account{
		CustomerID:  strings.TrimSpace(req.ClientID),
		ProductType: strings.TrimSpace(req.ProductType),
		Status:      req.Status,
		Currency:    req.Currency,
	}
	if req.Balance != nil {
		account.Balance = *req.Balance
	}

	created, err := s.transactions.OpenAccount(r.Context(), account)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	s.truthCache.Invalidate(created.CustomerID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id query parameter is required")
		return
	}

	accounts, err := s.store.ListAccountsByCustomer(r.Context(), clientID)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, core.ErrEmptyAccountID.Error())
		return
	}

	tx, err := s.transactions.CreateTransaction(r.Context(), req.AccountID, req.Type, req.Amount, req.Description)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	// The committed transaction changes the truth view of the owning
	// customer; drop the cached copy so the next read is fresh.
	if account, err := s.store.GetAccount(r.Context(), tx.AccountID); err == nil {
		s.truthCache.Invalidate(account.CustomerID)
	}

	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id query parameter is required")
		return
	}

	transactions, err := s.store.ListTransactionsByAccount(r.Context(), accountID, parseLimit(r, 50))
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (s *Server) handleCustomerTruth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if truth, ok := s.truthCache.Get(id); ok {
		writeJSON(w, http.StatusOK, truth)
		return
	}

	truth, err := s.truth.GetCustomerTruth(r.Context(), id)
	if err != nil {
		if !errors.Is(err, core.ErrCustomerNotFound) {
			s.logger.ErrorContext(r.Context(), "assemble customer truth",
				log.FieldCustomerID, id,
				log.FieldError, err.Error())
		}
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	s.truthCache.Set(id, truth)
	writeJSON(w, http.StatusOK, truth)
}

func (s *Server) handleDecisionHistory(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id query parameter is required")
		return
	}

	history, err := s.store.ListDecisionHistory(r.Context(), customerID, parseLimit(r, 50))
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handlePublishOutcome accepts a decision outcome and hands it to the
// broker. 202: the row only exists once the writeback consumer lands it.
func (s *Server) handlePublishOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome core.DecisionOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.transactions.PublishOutcome(r.Context(), outcome); err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func parseLimit(r *http.Request, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return fallback
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
