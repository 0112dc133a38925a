package http

import (
	"net/http"

	"familybank/internal/core"
)

type wishlistResponse struct {
	ID           int64  `json:"id"`
	AccountID    int64  `json:"account_id"`
	Name         string `json:"name"`
	TargetTokens int64  `json:"target_tokens"`
	Approved     bool   `json:"approved"`
	Purchased    bool   `json:"purchased"`
}

func toWishlistResponse(item core.WishlistItem) wishlistResponse {
	return wishlistResponse{
		ID:           item.ID,
		AccountID:    item.AccountID,
		Name:         item.Name,
		TargetTokens: int64(item.Target),
		Approved:     item.Approved,
		Purchased:    item.Purchased,
	}
}

func (s *Server) handleCreateWishlistItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64         `json:"account_id"`
		Name      string        `json:"name"`
		Target    amountRequest `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	target, err := req.Target.tokens()
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := s.wishlist.Create(r.Context(), core.WishlistItem{
		AccountID: req.AccountID,
		Name:      req.Name,
		Target:    target,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWishlistResponse(item))
}

func (s *Server) handleListWishlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	items, err := s.store.ListWishlistByAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]wishlistResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toWishlistResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleApproveWishlistItem settles the item against the WISHLIST jar.
func (s *Server) handleApproveWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	item, err := s.wishlist.ApproveAndPurchase(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateBalances(item.AccountID)
	writeJSON(w, http.StatusOK, toWishlistResponse(item))
}

func (s *Server) handleDenyWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if err := s.wishlist.Deny(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
