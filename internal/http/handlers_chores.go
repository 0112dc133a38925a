package http

import (
	"context"
	"net/http"
	"time"

	"familybank/internal/core"
)

type choreResponse struct {
	ID           int64    `json:"id"`
	AccountID    int64    `json:"account_id"`
	Title        string   `json:"title"`
	RewardTokens int64    `json:"reward_tokens"`
	Status       string   `json:"status"`
	Recurrence   string   `json:"recurrence"`
	Weekdays     []string `json:"weekdays,omitempty"`
	ScheduledOn  string   `json:"scheduled_on,omitempty"`
}

func toChoreResponse(c core.Chore) choreResponse {
	resp := choreResponse{
		ID:           c.ID,
		AccountID:    c.AccountID,
		Title:        c.Title,
		RewardTokens: int64(c.Reward),
		Status:       string(c.Status),
		Recurrence:   string(c.Recurrence),
		ScheduledOn:  c.ScheduledOn,
	}
	for _, d := range c.Weekdays {
		resp.Weekdays = append(resp.Weekdays, d.String())
	}
	return resp
}

func parseWeekdays(names []string) (core.Weekdays, bool) {
	byName := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	var out core.Weekdays
	for _, name := range names {
		d, ok := byName[normalize(name)]
		if !ok {
			return nil, false
		}
		out = append(out, d)
	}
	return out, true
}

func (s *Server) handleCreateChore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID  int64         `json:"account_id"`
		Title      string        `json:"title"`
		Reward     amountRequest `json:"reward"`
		Recurrence string        `json:"recurrence,omitempty"`
		Weekdays   []string      `json:"weekdays,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	reward, err := req.Reward.tokens()
	if err != nil {
		writeError(w, r, err)
		return
	}
	recurrence := core.RecurrenceNone
	if req.Recurrence != "" {
		recurrence = core.RecurrenceKind(normalize(req.Recurrence))
	}
	weekdays, ok := parseWeekdays(req.Weekdays)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid weekday", Code: "bad_request"})
		return
	}

	chore, err := s.chores.Create(r.Context(), core.Chore{
		AccountID:  req.AccountID,
		Title:      req.Title,
		Reward:     reward,
		Recurrence: recurrence,
		Weekdays:   weekdays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChoreResponse(chore))
}

func (s *Server) handleListChores(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	chores, err := s.store.ListChoresByAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]choreResponse, 0, len(chores))
	for _, c := range chores {
		out = append(out, toChoreResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitChore(w http.ResponseWriter, r *http.Request) {
	s.choreTransition(w, r, s.chores.Submit)
}

func (s *Server) handleRejectChore(w http.ResponseWriter, r *http.Request) {
	s.choreTransition(w, r, s.chores.Reject)
}

// handleApproveChore approves a submitted chore, which also applies the
// reward split, so the cached balances for that account go stale.
func (s *Server) handleApproveChore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	chore, err := s.store.GetChore(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.chores.Approve(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateBalances(chore.AccountID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) choreTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) error) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
