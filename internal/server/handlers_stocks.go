package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashita-ai/ichiba/internal/model"
)

// HandleProfile handles GET /v1/stocks/{symbol}/profile.
// The sections query parameter selects a comma-separated subset; the default
// is every section. Individual sections may fail, the profile never does.
func (h *Handlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}

	sections := model.AllSections()
	if raw := r.URL.Query().Get("sections"); raw != "" {
		sections = nil
		for _, part := range strings.Split(raw, ",") {
			s := model.Section(strings.TrimSpace(part))
			if !model.ValidSection(s) {
				writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown section: "+string(s))
				return
			}
			sections = append(sections, s)
		}
	}

	writeJSON(w, r, http.StatusOK, h.stocks.GetProfile(r.Context(), symbol, sections))
}

// HandlePrice handles GET /v1/stocks/{symbol}/price.
func (h *Handlers) HandlePrice(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	interval, ok := queryInterval(w, r)
	if !ok {
		return
	}
	outputSize, ok := queryInt(w, r, "outputsize", 0)
	if !ok {
		return
	}

	series, err := h.stocks.PriceSeries(r.Context(), symbol, interval, outputSize)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, series)
}

// HandleFundamentals handles GET /v1/stocks/{symbol}/fundamentals.
func (h *Handlers) HandleFundamentals(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}

	report, err := h.stocks.Fundamentals(r.Context(), symbol)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleNews handles GET /v1/stocks/{symbol}/news.
func (h *Handlers) HandleNews(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	days, ok := queryInt(w, r, "days", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	digest, err := h.stocks.News(r.Context(), symbol, days, limit)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, digest)
}

// HandleIndicators handles GET /v1/stocks/{symbol}/indicators.
func (h *Handlers) HandleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	interval, ok := queryInterval(w, r)
	if !ok {
		return
	}

	set, err := h.stocks.Indicators(r.Context(), symbol, interval)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, set)
}

// HandleState handles GET /v1/stocks/{symbol}/state. The state is partial
// by design: sections that could not be derived land in unavailable.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	interval, ok := queryInterval(w, r)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, h.stocks.StockState(r.Context(), symbol, interval))
}

// HandleAnalysis handles POST /v1/stocks/{symbol}/analysis. The body is
// optional; an absent timeframe means the service default.
func (h *Handlers) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}

	var req model.AnalysisRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil && !errors.Is(err, io.EOF) {
		handleDecodeError(w, r, err)
		return
	}
	if req.Timeframe != "" && !model.ValidInterval(req.Timeframe) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown timeframe: "+req.Timeframe)
		return
	}

	report, err := h.analyses.Generate(r.Context(), symbol, req.Timeframe)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleSearch handles GET /v1/search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "missing query parameter q")
		return
	}

	matches, err := h.stocks.SearchSymbol(r.Context(), q)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, matches)
}

// HandleMarketSummary handles GET /v1/market/summary.
func (h *Handlers) HandleMarketSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.stocks.MarketSummary(r.Context()))
}

// pathSymbol extracts the {symbol} path parameter.
func pathSymbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "missing symbol")
		return "", false
	}
	return symbol, true
}

// queryInterval reads the interval query parameter; empty means the service
// default.
func queryInterval(w http.ResponseWriter, r *http.Request) (string, bool) {
	interval := r.URL.Query().Get("interval")
	if interval != "" && !model.ValidInterval(interval) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown interval: "+interval)
		return "", false
	}
	return interval, true
}

// queryInt parses a non-negative integer query parameter, returning def
// when absent.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid "+name+": "+raw)
		return 0, false
	}
	return n, true
}
