package http

import (
	"net/http"
	"strconv"
	"strings"

	"familybank/internal/core"
)

type accountResponse struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Percentages map[string]int `json:"jar_percentages"`
}

func jarPercentages(js core.JarSet) map[string]int {
	out := make(map[string]int, 5)
	for jar, pct := range js.Percentages() {
		out[string(jar)] = pct
	}
	return out
}

// parseJarSet builds a JarSet from request percentages, falling back to the
// default split when none are given.
func parseJarSet(percentages map[string]int) (core.JarSet, error) {
	if len(percentages) == 0 {
		return core.DefaultJarSet(), nil
	}
	byJar := make(map[core.JarType]int, len(percentages))
	for name, pct := range percentages {
		jar, err := core.ParseJarType(name)
		if err != nil {
			return core.JarSet{}, err
		}
		byJar[jar] = pct
	}
	return core.NewJarSet(byJar)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string         `json:"name"`
		Percentages map[string]int `json:"jar_percentages"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, core.ErrEmptyName)
		return
	}
	jars, err := parseJarSet(req.Percentages)
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := s.store.CreateAccount(r.Context(), strings.TrimSpace(req.Name), jars)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{
		ID: account.ID, Name: account.Name, Percentages: jarPercentages(jars),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	account, err := s.store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jars, err := s.store.GetJarSet(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		ID: account.ID, Name: account.Name, Percentages: jarPercentages(jars),
	})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if err := s.store.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateBalances(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateJars replaces the account's allocation percentages. Existing
// balances are untouched; only future splits use the new percentages.
func (s *Server) handleUpdateJars(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	var req struct {
		Percentages map[string]int `json:"jar_percentages"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if len(req.Percentages) == 0 {
		writeError(w, r, core.ErrInvalidAllocation)
		return
	}
	jars, err := parseJarSet(req.Percentages)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.UpdateJarPercentages(r.Context(), id, jars); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{ID: id, Percentages: jarPercentages(jars)})
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	key := balanceCacheKey(id)
	if cached, ok := s.balances.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	balances, err := s.store.GetBalances(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list := balanceList(balances)
	s.balances.Set(key, list)
	writeJSON(w, http.StatusOK, list)
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	Jar         string `json:"jar"`
	Tokens      int64  `json:"tokens"`
	Type        string `json:"type"`
	ReferenceID *int64 `json:"reference_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	txs, err := s.store.ListTransactions(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:          tx.ID,
			Jar:         string(tx.Jar),
			Tokens:      int64(tx.Amount),
			Type:        string(tx.Type),
			ReferenceID: tx.ReferenceID,
			CreatedAt:   tx.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSplitPreview shows how an amount would distribute across the jars
// without touching the ledger.
func (s *Server) handleSplitPreview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	amount, err := core.ParseDecimalToTokens(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := s.allocator.Shares(r.Context(), id, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]balanceEntry, 0, len(shares))
	for _, share := range shares {
		out = append(out, balanceEntry{Jar: string(share.Jar), Tokens: int64(share.Amount), Display: share.Amount.Display()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeposit credits an amount split across the jars as a manual
// adjustment (birthday money and the like).
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	amount, err := req.tokens()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.allocator.SplitIntoJars(r.Context(), id, amount, core.TxManualAdjustment, nil); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateBalances(id)
	writeJSON(w, http.StatusOK, map[string]int64{"credited_tokens": int64(amount)})
}

func (s *Server) handleCashOut(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	var req struct {
		Jar string `json:"jar"`
		amountRequest
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	jar, err := core.ParseJarType(req.Jar)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.tokens()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.cashout.CashOut(r.Context(), id, jar, amount); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateBalances(id)
	writeJSON(w, http.StatusOK, map[string]int64{"debited_tokens": int64(amount)})
}
