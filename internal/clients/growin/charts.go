package growin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/growin/growin/internal/clientdata"
	"github.com/growin/growin/internal/modules/charts"
)

// ChartMetadata describes where chart data came from.
type ChartMetadata struct {
	Market   string `json:"market"`
	Currency string `json:"currency"`
	Symbol   string `json:"symbol,omitempty"`
	Ticker   string `json:"ticker"`
	Provider string `json:"provider"`
}

// ChartResponse is the body of GET /api/chart/{symbol}.
type ChartResponse struct {
	Data     []charts.Point `json:"data"`
	Metadata ChartMetadata  `json:"metadata"`
}

// chartEnvelope additionally carries the error the backend may embed in a 200.
// The error is either a string or an object with message/detail.
type chartEnvelope struct {
	ChartResponse
	Error json.RawMessage `json:"error,omitempty"`
}

// Analysis is the body of GET /api/analysis/{symbol}. The two analysis fields are
// free-form: a summary string or a structured object depending on the backend path.
type Analysis struct {
	AIAnalysis  interface{} `json:"ai_analysis"`
	AlgoSignals interface{} `json:"algo_signals"`
	LastUpdated string      `json:"last_updated,omitempty"`
}

// GetChart fetches OHLCV data for symbol.
func (c *Client) GetChart(ctx context.Context, symbol, timeframe, provider string) (*ChartResponse, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidURL)
	}

	key := strings.Join([]string{strings.ToUpper(symbol), timeframe, provider}, ":")
	path := "/api/chart/" + url.PathEscape(symbol)

	resp, err := cached(ctx, c, clientdata.TableChart, key, clientdata.TTLChart, func() (ChartResponse, error) {
		query := url.Values{}
		if timeframe != "" {
			query.Set("timeframe", timeframe)
		}
		if provider != "" {
			query.Set("provider", provider)
		}

		var env chartEnvelope
		if err := c.getJSON(ctx, path, query, &env); err != nil {
			return ChartResponse{}, err
		}
		if msg := embeddedError(env.Error); msg != "" {
			return ChartResponse{}, &APIError{StatusCode: 200, Detail: msg, Path: path}
		}
		if env.Data == nil {
			env.Data = []charts.Point{}
		}
		return env.ChartResponse, nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func embeddedError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}
	return "chart request failed"
}

// GetAnalysis fetches technical analysis for symbol.
func (c *Client) GetAnalysis(ctx context.Context, symbol, timeframe string) (*Analysis, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidURL)
	}

	key := strings.ToUpper(symbol) + ":" + timeframe
	path := "/api/analysis/" + url.PathEscape(symbol)

	resp, err := cached(ctx, c, clientdata.TableAnalysis, key, clientdata.TTLAnalysis, func() (Analysis, error) {
		query := url.Values{}
		if timeframe != "" {
			query.Set("timeframe", timeframe)
		}
		var a Analysis
		err := c.getJSON(ctx, path, query, &a)
		return a, err
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChartStreamURL returns the socket URL streaming updates for symbol.
func (c *Client) ChartStreamURL(symbol string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chart/" + symbol
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/ws/chart/" + url.PathEscape(symbol)
	u.RawQuery = ""
	return u.String()
}
