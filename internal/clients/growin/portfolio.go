package growin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/growin/growin/internal/clientdata"
	"github.com/growin/growin/internal/dates"
	"github.com/growin/growin/internal/modules/portfolio"
)

// HistoryPoint is one day of portfolio history.
type HistoryPoint struct {
	Timestamp   string  `json:"timestamp"`
	TotalValue  float64 `json:"total_value"`
	TotalPnL    float64 `json:"total_pnl"`
	CashBalance float64 `json:"cash_balance"`
}

// ParsedTime returns the point's timestamp, or the current time when unparseable.
func (p HistoryPoint) ParsedTime() time.Time {
	return dates.Parse(p.Timestamp)
}

// Trading212Config switches the backend's broker account and optionally rotates
// the API keys. Empty keys are left unchanged by the backend.
type Trading212Config struct {
	AccountType  string `json:"account_type"`
	InvestKey    string `json:"invest_key,omitempty"`
	InvestSecret string `json:"invest_secret,omitempty"`
	ISAKey       string `json:"isa_key,omitempty"`
	ISASecret    string `json:"isa_secret,omitempty"`
}

type accountTypeBody struct {
	AccountType string `json:"account_type"`
}

// GetLivePortfolio fetches the current snapshot. It is never served from cache.
func (c *Client) GetLivePortfolio(ctx context.Context, account portfolio.AccountFilter) (*portfolio.Snapshot, error) {
	query := url.Values{"account_type": {string(accountOrAll(account))}}

	var snapshot portfolio.Snapshot
	if err := c.getJSON(ctx, "/portfolio/live", query, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetPortfolioHistory fetches daily history points in server order.
func (c *Client) GetPortfolioHistory(ctx context.Context, days int, account portfolio.AccountFilter) ([]HistoryPoint, error) {
	if days <= 0 {
		days = 30
	}
	account = accountOrAll(account)
	key := fmt.Sprintf("%d:%s", days, account)

	return cached(ctx, c, clientdata.TablePortfolioHistory, key, clientdata.TTLPortfolioHistory, func() ([]HistoryPoint, error) {
		query := url.Values{
			"days":         {strconv.Itoa(days)},
			"account_type": {string(account)},
		}
		var points []HistoryPoint
		if err := c.getJSON(ctx, "/portfolio/history", query, &points); err != nil {
			return nil, err
		}
		if points == nil {
			points = []HistoryPoint{}
		}
		return points, nil
	})
}

// ConfigureTrading212 updates the broker configuration on the backend.
func (c *Client) ConfigureTrading212(ctx context.Context, cfg Trading212Config) error {
	if _, err := portfolio.ParseAccountFilter(cfg.AccountType); err != nil {
		return err
	}
	return c.postJSON(ctx, "/mcp/trading212/config", cfg, nil)
}

// GetActiveAccount returns the account the backend defaults to.
func (c *Client) GetActiveAccount(ctx context.Context) (string, error) {
	var body accountTypeBody
	if err := c.getJSON(ctx, "/account/active", nil, &body); err != nil {
		return "", err
	}
	return body.AccountType, nil
}

// SetActiveAccount changes the account the backend defaults to.
func (c *Client) SetActiveAccount(ctx context.Context, account string) error {
	if account == "" {
		return fmt.Errorf("account type is required")
	}
	return c.postJSON(ctx, "/account/active", accountTypeBody{AccountType: account}, nil)
}

// ClearCache drops the backend's in-memory caches and the local response cache.
func (c *Client) ClearCache(ctx context.Context) error {
	if err := c.postJSON(ctx, "/cache/clear", nil, nil); err != nil {
		return err
	}
	if c.cacheRepo != nil {
		if _, err := c.cacheRepo.Clear(); err != nil {
			return fmt.Errorf("failed to clear local cache: %w", err)
		}
	}
	return nil
}

func accountOrAll(account portfolio.AccountFilter) portfolio.AccountFilter {
	if account == "" {
		return portfolio.AccountAll
	}
	return account
}
