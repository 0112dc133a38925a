package http

import (
	"net/http"
	"time"
)

type allowanceResponse struct {
	ID            int64  `json:"id"`
	AccountID     int64  `json:"account_id"`
	WeeklyTokens  int64  `json:"weekly_tokens"`
	PayDay        string `json:"pay_day"`
	NextPaymentAt string `json:"next_payment_at"`
	Active        bool   `json:"active"`
}

func (s *Server) handleCreateAllowance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64         `json:"account_id"`
		Weekly    amountRequest `json:"weekly_amount"`
		PayDay    string        `json:"pay_day"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	weekly, err := req.Weekly.tokens()
	if err != nil {
		writeError(w, r, err)
		return
	}
	payDay, ok := parseWeekdays([]string{req.PayDay})
	if !ok || len(payDay) != 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid pay day", Code: "bad_request"})
		return
	}

	a, err := s.allowances.Create(r.Context(), req.AccountID, weekly, payDay[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, allowanceResponse{
		ID:            a.ID,
		AccountID:     a.AccountID,
		WeeklyTokens:  int64(a.WeeklyAmount),
		PayDay:        a.PayDay.String(),
		NextPaymentAt: a.NextPaymentAt.UTC().Format(time.RFC3339),
		Active:        a.Active,
	})
}

func (s *Server) handleDeactivateAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if err := s.allowances.Deactivate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if err := s.allowances.Activate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
