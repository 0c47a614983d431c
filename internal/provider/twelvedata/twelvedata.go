// Package twelvedata adapts the Twelve Data REST API: OHLCV time series and
// symbol search. The upstream reports most errors inside a 200 body; this
// adapter maps that envelope onto the failure taxonomy.
package twelvedata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/provider"
)

// Name is the provider name used for rate-limit and cache keys.
const Name = "twelvedata"

// Client calls the Twelve Data API through a shared provider.Runner.
type Client struct {
	runner  *provider.Runner
	baseURL string
	apiKey  string
}

// New creates a Twelve Data client. baseURL defaults to the public API.
func New(runner *provider.Runner, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.twelvedata.com"
	}
	return &Client{runner: runner, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// errorEnvelope is Twelve Data's in-body error shape, present alongside the
// payload fields on every endpoint.
type errorEnvelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e errorEnvelope) failure() *model.Failure {
	if e.Status != "error" {
		return nil
	}
	if e.Code == http.StatusTooManyRequests {
		return model.NewFailure(model.KindRateLimited, true, "twelvedata: %s", e.Message)
	}
	return model.NewFailure(model.KindInvalidUpstreamResponse, false, "twelvedata: %s", e.Message)
}

type seriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type timeSeriesResponse struct {
	errorEnvelope
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
		Currency string `json:"currency"`
		Exchange string `json:"exchange"`
	} `json:"meta"`
	Values []seriesValue `json:"values"`
}

// TimeSeries fetches up to outputSize OHLCV candles for symbol at interval.
// The upstream returns newest first; the series comes back oldest first.
func (c *Client) TimeSeries(ctx context.Context, symbol, interval string, outputSize int) (model.PriceSeries, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if outputSize > 0 {
		q.Set("outputsize", strconv.Itoa(outputSize))
	}
	q.Set("apikey", c.apiKey)

	var raw timeSeriesResponse
	if err := c.runner.GetJSON(ctx, "time_series", c.baseURL+"/time_series?"+q.Encode(), &raw); err != nil {
		return model.PriceSeries{}, err
	}
	if f := raw.failure(); f != nil {
		return model.PriceSeries{}, f
	}
	if len(raw.Values) == 0 {
		return model.PriceSeries{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"twelvedata: no values for %s %s", symbol, interval)
	}

	candles := make([]model.Candle, 0, len(raw.Values))
	for i := len(raw.Values) - 1; i >= 0; i-- {
		candle, err := parseCandle(raw.Values[i])
		if err != nil {
			return model.PriceSeries{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
				"twelvedata: %v", err)
		}
		candles = append(candles, candle)
	}

	return model.PriceSeries{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Interval: interval,
		Candles:  candles,
	}, nil
}

// Daily candles carry a date only, intraday ones a full timestamp.
var datetimeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

func parseCandle(v seriesValue) (model.Candle, error) {
	var ts time.Time
	var err error
	for _, layout := range datetimeLayouts {
		ts, err = time.Parse(layout, v.Datetime)
		if err == nil {
			break
		}
	}
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse datetime %q: %w", v.Datetime, err)
	}

	open, err := strconv.ParseFloat(v.Open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse open %q: %w", v.Open, err)
	}
	high, err := strconv.ParseFloat(v.High, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse high %q: %w", v.High, err)
	}
	low, err := strconv.ParseFloat(v.Low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse low %q: %w", v.Low, err)
	}
	closing, err := strconv.ParseFloat(v.Close, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse close %q: %w", v.Close, err)
	}

	// Some instruments report no volume.
	var volume int64
	if v.Volume != "" {
		volume, err = strconv.ParseInt(v.Volume, 10, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse volume %q: %w", v.Volume, err)
		}
	}

	return model.Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closing,
		Volume:    volume,
	}, nil
}

type symbolSearchResponse struct {
	errorEnvelope
	Data []struct {
		Symbol         string `json:"symbol"`
		InstrumentName string `json:"instrument_name"`
		Exchange       string `json:"exchange"`
		Currency       string `json:"currency"`
	} `json:"data"`
}

// SymbolSearch finds instruments matching keyword. No matches is a valid
// empty result, not a failure.
func (c *Client) SymbolSearch(ctx context.Context, keyword string) ([]model.SymbolMatch, error) {
	q := url.Values{}
	q.Set("symbol", keyword)
	q.Set("apikey", c.apiKey)

	var raw symbolSearchResponse
	if err := c.runner.GetJSON(ctx, "symbol_search", c.baseURL+"/symbol_search?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	if f := raw.failure(); f != nil {
		return nil, f
	}

	matches := make([]model.SymbolMatch, 0, len(raw.Data))
	for _, d := range raw.Data {
		matches = append(matches, model.SymbolMatch{
			Symbol:   d.Symbol,
			Name:     d.InstrumentName,
			Exchange: d.Exchange,
			Currency: d.Currency,
		})
	}
	return matches, nil
}
