package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"familybank/internal/core"
	"familybank/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// writeError maps domain errors onto HTTP statuses with stable codes.
// Anything unexpected is assumed transient and gets a 503 so clients retry.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusServiceUnavailable, "transient"
	switch {
	case errors.Is(err, core.ErrAccountNotFound), errors.Is(err, core.ErrEntityNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrInsufficientFunds):
		status, code = http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, core.ErrInvalidStateTransition):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, core.ErrDuplicatePayment):
		status, code = http.StatusConflict, "duplicate_payment"
	case errors.Is(err, core.ErrInvalidAllocation):
		status, code = http.StatusBadRequest, "invalid_allocation"
	case errors.Is(err, core.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, core.ErrInvalidJarType):
		status, code = http.StatusBadRequest, "invalid_jar"
	case errors.Is(err, core.ErrEmptyName):
		status, code = http.StatusBadRequest, "empty_name"
	case errors.Is(err, core.ErrWishlistLocked):
		status, code = http.StatusBadRequest, "wishlist_locked"
	case !services.IsRetryable(err):
		status, code = http.StatusBadRequest, "invalid_request"
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
	}
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = "temporary failure, retry shortly"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// amountRequest carries a value either as integer tokens or as a decimal
// display-currency string ("12.5"). Exactly one should be set.
type amountRequest struct {
	AmountTokens int64  `json:"amount_tokens,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

func (a amountRequest) tokens() (core.Tokens, error) {
	if a.AmountTokens != 0 {
		t := core.Tokens(a.AmountTokens)
		if err := t.Validate(); err != nil {
			return 0, err
		}
		return t, nil
	}
	return core.ParseDecimalToTokens(a.Amount)
}

type balanceEntry struct {
	Jar     string  `json:"jar"`
	Tokens  int64   `json:"tokens"`
	Display float64 `json:"display"`
}

func balanceList(balances map[core.JarType]core.Tokens) []balanceEntry {
	out := make([]balanceEntry, 0, len(balances))
	for _, jar := range core.AllJarTypes() {
		t := balances[jar]
		out = append(out, balanceEntry{Jar: string(jar), Tokens: int64(t), Display: t.Display()})
	}
	return out
}
