// Package http exposes the JSON API: account and jar management, the chore
// lifecycle, allowances, wishlist settlement, cash-out, and the job trigger
// endpoints for the external scheduler.
package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"familybank/internal/cache"
	"familybank/internal/core"
	"familybank/internal/middleware/ratelimit"
	"familybank/internal/middleware/trace"
)

// Store is the read/write surface the API needs from storage. Mutations on
// chores, allowances, and the wishlist go through the services instead.
type Store interface {
	CreateAccount(ctx context.Context, name string, jars core.JarSet) (core.Account, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	GetJarSet(ctx context.Context, accountID int64) (core.JarSet, error)
	UpdateJarPercentages(ctx context.Context, accountID int64, jars core.JarSet) error
	GetBalances(ctx context.Context, accountID int64) (map[core.JarType]core.Tokens, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]core.Transaction, error)
	GetChore(ctx context.Context, id int64) (core.Chore, error)
	ListChoresByAccount(ctx context.Context, accountID int64) ([]core.Chore, error)
	ListWishlistByAccount(ctx context.Context, accountID int64) ([]core.WishlistItem, error)
}

type Allocator interface {
	SplitIntoJars(ctx context.Context, accountID int64, amount core.Tokens, txType core.TransactionType, referenceID *int64) error
	Shares(ctx context.Context, accountID int64, amount core.Tokens) ([]core.Share, error)
}

type ChoreAPI interface {
	Create(ctx context.Context, c core.Chore) (core.Chore, error)
	Submit(ctx context.Context, choreID int64) error
	Approve(ctx context.Context, choreID int64) error
	Reject(ctx context.Context, choreID int64) error
	MaterializeRecurring(ctx context.Context, now time.Time) (int, error)
	CleanupApproved(ctx context.Context, now time.Time) (int64, error)
}

type AllowanceAPI interface {
	Create(ctx context.Context, accountID int64, weeklyAmount core.Tokens, payDay time.Weekday) (core.Allowance, error)
	ProcessDue(ctx context.Context, now time.Time) (processed, failed int, err error)
	Deactivate(ctx context.Context, id int64) error
	Activate(ctx context.Context, id int64) error
}

type WishlistAPI interface {
	Create(ctx context.Context, item core.WishlistItem) (core.WishlistItem, error)
	ApproveAndPurchase(ctx context.Context, itemID int64) (core.WishlistItem, error)
	Deny(ctx context.Context, itemID int64) error
}

type CashOutAPI interface {
	CashOut(ctx context.Context, accountID int64, jar core.JarType, amount core.Tokens) error
}

type Server struct {
	http.Server

	store      Store
	allocator  Allocator
	chores     ChoreAPI
	allowances AllowanceAPI
	wishlist   WishlistAPI
	cashout    CashOutAPI
	jobSecret  string

	// Balance reads dominate traffic; mutations invalidate per account and
	// a short TTL covers mutations from the background jobs.
	balances *cache.LRU[[]balanceEntry]
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

func NewServer(addr string, store Store, allocator Allocator, chores ChoreAPI, allowances AllowanceAPI, wishlist WishlistAPI, cashout CashOutAPI, jobSecret string) *Server {
	s := &Server{
		store:      store,
		allocator:  allocator,
		chores:     chores,
		allowances: allowances,
		wishlist:   wishlist,
		cashout:    cashout,
		jobSecret:  jobSecret,
		balances:   cache.NewLRU[[]balanceEntry](100, 30*time.Second),
		limiter:    ratelimit.NewLimiter(60),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("PUT /accounts/{id}/jars", s.handleUpdateJars)
	mux.HandleFunc("GET /accounts/{id}/balances", s.handleGetBalances)
	mux.HandleFunc("GET /accounts/{id}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /accounts/{id}/split-preview", s.handleSplitPreview)
	mux.HandleFunc("POST /accounts/{id}/deposit", s.handleDeposit)
	mux.HandleFunc("POST /accounts/{id}/cashout", s.handleCashOut)

	mux.HandleFunc("POST /chores", s.handleCreateChore)
	mux.HandleFunc("GET /accounts/{id}/chores", s.handleListChores)
	mux.HandleFunc("POST /chores/{id}/submit", s.handleSubmitChore)
	mux.HandleFunc("POST /chores/{id}/approve", s.handleApproveChore)
	mux.HandleFunc("POST /chores/{id}/reject", s.handleRejectChore)

	mux.HandleFunc("POST /allowances", s.handleCreateAllowance)
	mux.HandleFunc("POST /allowances/{id}/deactivate", s.handleDeactivateAllowance)
	mux.HandleFunc("POST /allowances/{id}/activate", s.handleActivateAllowance)

	mux.HandleFunc("POST /wishlist", s.handleCreateWishlistItem)
	mux.HandleFunc("GET /accounts/{id}/wishlist", s.handleListWishlist)
	mux.HandleFunc("POST /wishlist/{id}/approve", s.handleApproveWishlistItem)
	mux.HandleFunc("POST /wishlist/{id}/deny", s.handleDenyWishlistItem)

	mux.HandleFunc("POST /jobs/allowances", s.requireJobSecret(s.handleJobAllowances))
	mux.HandleFunc("POST /jobs/chores", s.requireJobSecret(s.handleJobChores))
	mux.HandleFunc("POST /jobs/cleanup", s.requireJobSecret(s.handleJobCleanup))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           trace.Middleware(s.limiter.Middleware(securityHeaders(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// requireJobSecret guards the job trigger endpoints. Without a configured
// secret the endpoints are disabled entirely.
func (s *Server) requireJobSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jobSecret == "" {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "job endpoints disabled", Code: "jobs_disabled"})
			return
		}
		got := r.Header.Get("X-Job-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.jobSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid job secret", Code: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func balanceCacheKey(accountID int64) string {
	return strconv.FormatInt(accountID, 10)
}

func (s *Server) invalidateBalances(accountID int64) {
	s.balances.Invalidate(balanceCacheKey(accountID))
}
