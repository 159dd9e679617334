package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/growin/growin/internal/clients/growin"
	"github.com/growin/growin/internal/modules/live"
	"github.com/growin/growin/internal/modules/portfolio"
)

// PortfolioResponse is the JSON form of the poller state.
type PortfolioResponse struct {
	Status      string            `json:"status"`
	Account     string            `json:"account"`
	Loading     bool              `json:"loading"`
	Error       string            `json:"error,omitempty"`
	Cycles      int               `json:"cycles"`
	LastSuccess *time.Time        `json:"last_success,omitempty"`
	LastAttempt *time.Time        `json:"last_attempt,omitempty"`
	Result      *portfolio.Result `json:"result"`
}

// AllocationsResponse is the allocation view of one account or all of them.
type AllocationsResponse struct {
	Account string                     `json:"account"`
	Items   []portfolio.AllocationItem `json:"items"`
	Shares  []float64                  `json:"shares"`
}

type activeAccountRequest struct {
	AccountType string `json:"account_type"`
}

type activeAccountResponse struct {
	AccountType string `json:"account_type"`
}

func newPortfolioResponse(state live.State) PortfolioResponse {
	resp := PortfolioResponse{
		Status:  string(state.Status),
		Account: string(state.Account),
		Loading: state.Loading,
		Cycles:  state.Cycles,
		Result:  state.Result,
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	if !state.LastSuccess.IsZero() {
		t := state.LastSuccess
		resp.LastSuccess = &t
	}
	if !state.LastAttempt.IsZero() {
		t := state.LastAttempt
		resp.LastAttempt = &t
	}
	return resp
}

// handlePortfolio returns the latest published poller state.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newPortfolioResponse(s.poller.State()))
}

// handlePortfolioAccount returns one account view.
func (s *Server) handlePortfolioAccount(w http.ResponseWriter, r *http.Request) {
	result := s.poller.State().Result
	if result == nil {
		s.writeError(w, http.StatusServiceUnavailable, "portfolio not loaded yet")
		return
	}

	key := portfolio.NormalizeAccountTag(chi.URLParam(r, "key"))
	view, ok := result.PerAccount[key]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown account: "+key)
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

// handleAllocations returns the top allocations overall or for one account.
func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	result := s.poller.State().Result
	if result == nil {
		s.writeError(w, http.StatusServiceUnavailable, "portfolio not loaded yet")
		return
	}

	account := portfolio.NormalizeAccountTag(r.URL.Query().Get("account"))
	if account == "" {
		account = string(portfolio.AccountAll)
	}

	var items []portfolio.AllocationItem
	if account == string(portfolio.AccountAll) {
		items = result.TopAllocations
	} else {
		view, ok := result.PerAccount[account]
		if !ok {
			s.writeError(w, http.StatusNotFound, "unknown account: "+account)
			return
		}
		items = portfolio.TopAllocations(view.Positions, portfolio.DefaultTopN)
	}

	s.writeJSON(w, http.StatusOK, AllocationsResponse{
		Account: account,
		Items:   items,
		Shares:  portfolio.AllocationShares(items),
	})
}

// handleRefresh runs one poll cycle and returns the resulting state.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.poller.Refresh(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Manual refresh failed")
		s.writeError(w, statusForBackendError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, newPortfolioResponse(s.poller.State()))
}

// handleGetActiveAccount returns the account filter the poller uses.
func (s *Server) handleGetActiveAccount(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, activeAccountResponse{AccountType: string(s.poller.Account())})
}

// handleSetActiveAccount switches the backend's active account, clears its
// cache and points the poller at the new account.
func (s *Server) handleSetActiveAccount(w http.ResponseWriter, r *http.Request) {
	var req activeAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := portfolio.ParseAccountFilter(req.AccountType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.backend != nil && account != portfolio.AccountAll {
		if err := s.backend.SetActiveAccount(r.Context(), string(account)); err != nil {
			s.log.Warn().Err(err).Str("account", string(account)).Msg("Failed to switch backend account")
			s.writeError(w, statusForBackendError(err), err.Error())
			return
		}
		if err := s.backend.ClearCache(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Failed to clear backend cache after account switch")
		}
	}

	s.poller.SetAccount(account)

	s.writeJSON(w, http.StatusOK, activeAccountResponse{AccountType: string(account)})
}

// statusForBackendError maps a transport error to the status returned to callers.
func statusForBackendError(err error) int {
	var apiErr *growin.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	return http.StatusBadGateway
}
