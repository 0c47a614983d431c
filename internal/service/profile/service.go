// Package profile aggregates market data for one symbol across providers.
//
// Both the HTTP API and the agent's tool registry delegate to this service,
// so caching, fan-out, and partial-failure semantics live in exactly one
// place. Every upstream read goes through the cache-aside Accessor; a failed
// section never fails the profile.
package profile

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/ichiba/internal/cache"
	"github.com/ashita-ai/ichiba/internal/indicator"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/provider/fmp"
	"github.com/ashita-ai/ichiba/internal/provider/tavily"
	"github.com/ashita-ai/ichiba/internal/provider/twelvedata"
	"github.com/ashita-ai/ichiba/internal/telemetry"
)

// PriceProvider is the slice of the Twelve Data client the service uses.
type PriceProvider interface {
	TimeSeries(ctx context.Context, symbol, interval string, outputSize int) (model.PriceSeries, error)
	SymbolSearch(ctx context.Context, keyword string) ([]model.SymbolMatch, error)
}

// FundamentalsProvider is the slice of the FMP client the service uses.
type FundamentalsProvider interface {
	IncomeStatements(ctx context.Context, symbol string, limit int) ([]model.IncomeStatement, error)
	BalanceSheets(ctx context.Context, symbol string, limit int) ([]model.BalanceSheet, error)
	CashFlows(ctx context.Context, symbol string, limit int) ([]model.CashFlowStatement, error)
	Quote(ctx context.Context, symbol string) (model.Quote, error)
}

// NewsProvider is the slice of the Tavily client the service uses.
type NewsProvider interface {
	SearchNews(ctx context.Context, query string, days, maxResults int) ([]model.NewsItem, error)
}

// Archiver records successfully fetched data for offline research. Archive
// errors are logged and swallowed; they must never surface to callers.
type Archiver interface {
	SavePriceSeries(ctx context.Context, series model.PriceSeries) error
	SaveFundamentals(ctx context.Context, report model.FundamentalsReport) error
}

// Config carries the service's TTLs, fetch defaults, and fan-out timeout.
// Zero values fall back to the documented defaults.
type Config struct {
	SectionTimeout time.Duration

	PriceTTL       time.Duration
	DailyPriceTTL  time.Duration
	QuoteTTL       time.Duration
	NewsTTL        time.Duration
	FundamentalTTL time.Duration
	IndicatorTTL   time.Duration
	SearchTTL      time.Duration

	OutputSize int // candles per price fetch; 200 covers the slowest indicator warm-up
	NewsDays   int
	NewsLimit  int
	Quarters   int
}

func (c Config) withDefaults() Config {
	if c.SectionTimeout <= 0 {
		c.SectionTimeout = 12 * time.Second
	}
	if c.PriceTTL <= 0 {
		c.PriceTTL = 5 * time.Minute
	}
	if c.DailyPriceTTL <= 0 {
		c.DailyPriceTTL = 24 * time.Hour
	}
	if c.QuoteTTL <= 0 {
		c.QuoteTTL = 5 * time.Minute
	}
	if c.NewsTTL <= 0 {
		c.NewsTTL = time.Hour
	}
	if c.FundamentalTTL <= 0 {
		c.FundamentalTTL = time.Hour
	}
	if c.IndicatorTTL <= 0 {
		c.IndicatorTTL = 5 * time.Minute
	}
	if c.SearchTTL <= 0 {
		c.SearchTTL = time.Hour
	}
	if c.OutputSize <= 0 {
		c.OutputSize = 200
	}
	if c.NewsDays <= 0 {
		c.NewsDays = 7
	}
	if c.NewsLimit <= 0 {
		c.NewsLimit = 10
	}
	if c.Quarters <= 0 {
		c.Quarters = fmp.DefaultQuarters
	}
	return c
}

// Service is the aggregation layer over the provider adapters.
type Service struct {
	cache   *cache.Accessor
	prices  PriceProvider
	funds   FundamentalsProvider
	news    NewsProvider
	archive Archiver
	cfg     Config
	logger  *slog.Logger

	sectionDuration metric.Float64Histogram
	sectionFailures metric.Int64Counter
}

// New creates the aggregation service. archive may be nil when archiving is
// disabled.
func New(accessor *cache.Accessor, prices PriceProvider, funds FundamentalsProvider, news NewsProvider, archive Archiver, cfg Config, logger *slog.Logger) *Service {
	meter := telemetry.Meter("ichiba/profile")
	sectionDur, _ := meter.Float64Histogram("ichiba.profile.section.duration",
		metric.WithDescription("Per-section fetch latency (ms)"),
		metric.WithUnit("ms"),
	)
	sectionFails, _ := meter.Int64Counter("ichiba.profile.section.failures",
		metric.WithDescription("Profile section failures by kind"),
	)
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:           accessor,
		prices:          prices,
		funds:           funds,
		news:            news,
		archive:         archive,
		cfg:             cfg.withDefaults(),
		logger:          logger,
		sectionDuration: sectionDur,
		sectionFailures: sectionFails,
	}
}

// GetProfile fans out one goroutine per requested section, each under its
// own SectionTimeout. The returned profile always contains exactly the
// requested section set (deduplicated); failed sections carry their failure
// in place of a payload. An empty section list means all sections.
func (s *Service) GetProfile(ctx context.Context, symbol string, sections []model.Section) model.AggregatedProfile {
	symbol = normalizeSymbol(symbol)
	if len(sections) == 0 {
		sections = model.AllSections()
	}

	requested := make([]model.Section, 0, len(sections))
	seen := make(map[model.Section]bool, len(sections))
	for _, section := range sections {
		if !seen[section] {
			seen[section] = true
			requested = append(requested, section)
		}
	}

	return model.AggregatedProfile{
		Symbol:    symbol,
		Sections:  s.fanOut(ctx, symbol, requested, "1day"),
		FetchedAt: time.Now().UTC(),
	}
}

// fanOut fetches each section concurrently, each under its own timeout.
// interval steers the price and indicator sections only.
func (s *Service) fanOut(ctx context.Context, symbol string, sections []model.Section, interval string) map[model.Section]model.Result {
	results := make([]model.Result, len(sections))
	var wg sync.WaitGroup
	for i, section := range sections {
		wg.Add(1)
		go func(i int, section model.Section) {
			defer wg.Done()
			results[i] = s.fetchSection(ctx, symbol, section, interval)
		}(i, section)
	}
	wg.Wait()

	out := make(map[model.Section]model.Result, len(sections))
	for i, section := range sections {
		out[section] = results[i]
	}
	return out
}

func (s *Service) fetchSection(ctx context.Context, symbol string, section model.Section, interval string) model.Result {
	if !model.ValidSection(section) {
		return model.Fail(model.NewFailure(model.KindInvalidArguments, false,
			"profile: unknown section %q", section))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SectionTimeout)
	defer cancel()

	start := time.Now()
	var payload any
	var fetchedAt time.Time
	var err error
	switch section {
	case model.SectionPrice:
		payload, fetchedAt, err = s.priceSeries(ctx, symbol, interval, s.cfg.OutputSize)
	case model.SectionFundamentals:
		payload, fetchedAt, err = s.fundamentals(ctx, symbol)
	case model.SectionNews:
		payload, fetchedAt, err = s.newsDigest(ctx, symbol, s.cfg.NewsDays, s.cfg.NewsLimit)
	case model.SectionIndicators:
		payload, fetchedAt, err = s.indicators(ctx, symbol, interval)
	}
	s.observeSection(ctx, section, err, time.Since(start))

	if err != nil {
		failure := model.AsFailure(err)
		s.logger.Warn("profile section failed",
			"symbol", symbol, "section", section, "kind", failure.Kind, "error", failure.Message)
		return model.Result{Failure: failure}
	}
	return model.Succeed(payload, fetchedAt)
}

func (s *Service) observeSection(ctx context.Context, section model.Section, err error, elapsed time.Duration) {
	s.sectionDuration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("profile.section", string(section))))
	if err != nil {
		s.sectionFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("profile.section", string(section)),
			attribute.String("failure.kind", string(model.AsFailure(err).Kind)),
		))
	}
}

// PriceSeries returns the candle series for symbol, cache-mediated. Daily
// series live under the longer DailyPriceTTL; intraday intervals refresh
// every PriceTTL.
func (s *Service) PriceSeries(ctx context.Context, symbol, interval string, outputSize int) (model.PriceSeries, error) {
	series, _, err := s.priceSeries(ctx, symbol, interval, outputSize)
	return series, err
}

func (s *Service) priceSeries(ctx context.Context, symbol, interval string, outputSize int) (model.PriceSeries, time.Time, error) {
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)
	if outputSize <= 0 {
		outputSize = s.cfg.OutputSize
	}

	spec := cache.KeySpec{
		Provider:  twelvedata.Name,
		Operation: "price",
		Params: map[string]string{
			"symbol":     symbol,
			"interval":   interval,
			"outputsize": strconv.Itoa(outputSize),
		},
	}
	return fetchCached[model.PriceSeries](ctx, s, spec, s.priceTTL(interval), func(ctx context.Context) (any, error) {
		series, err := s.prices.TimeSeries(ctx, symbol, interval, outputSize)
		if err != nil {
			return nil, err
		}
		s.archivePrices(ctx, series)
		return series, nil
	})
}

func (s *Service) priceTTL(interval string) time.Duration {
	if interval == "1day" {
		return s.cfg.DailyPriceTTL
	}
	return s.cfg.PriceTTL
}

// Quote returns the valuation snapshot for symbol, cache-mediated.
func (s *Service) Quote(ctx context.Context, symbol string) (model.Quote, error) {
	symbol = normalizeSymbol(symbol)
	spec := cache.KeySpec{
		Provider:  fmp.Name,
		Operation: "quote",
		Params:    map[string]string{"symbol": symbol},
	}
	quote, _, err := fetchCached[model.Quote](ctx, s, spec, s.cfg.QuoteTTL, func(ctx context.Context) (any, error) {
		return s.funds.Quote(ctx, symbol)
	})
	return quote, err
}

// News returns recent coverage for symbol. Non-positive days/limit fall back
// to the configured defaults.
func (s *Service) News(ctx context.Context, symbol string, days, limit int) (model.NewsDigest, error) {
	digest, _, err := s.newsDigest(ctx, symbol, days, limit)
	return digest, err
}

func (s *Service) newsDigest(ctx context.Context, symbol string, days, limit int) (model.NewsDigest, time.Time, error) {
	symbol = normalizeSymbol(symbol)
	if days <= 0 {
		days = s.cfg.NewsDays
	}
	if limit <= 0 {
		limit = s.cfg.NewsLimit
	}

	spec := cache.KeySpec{
		Provider:  tavily.Name,
		Operation: "news",
		Params: map[string]string{
			"symbol": symbol,
			"days":   strconv.Itoa(days),
			"limit":  strconv.Itoa(limit),
		},
	}
	return fetchCached[model.NewsDigest](ctx, s, spec, s.cfg.NewsTTL, func(ctx context.Context) (any, error) {
		items, err := s.news.SearchNews(ctx, symbol, days, limit)
		if err != nil {
			return nil, err
		}
		return model.NewsDigest{Symbol: symbol, Query: symbol, Days: days, Items: items}, nil
	})
}

// Indicators computes the indicator set from the (cached) price series and
// caches the result under its own shorter TTL.
func (s *Service) Indicators(ctx context.Context, symbol, interval string) (indicator.Set, error) {
	set, _, err := s.indicators(ctx, symbol, interval)
	return set, err
}

func (s *Service) indicators(ctx context.Context, symbol, interval string) (indicator.Set, time.Time, error) {
	symbol = normalizeSymbol(symbol)
	interval = normalizeInterval(interval)

	spec := cache.KeySpec{
		Provider:  "indicator",
		Operation: "set",
		Params: map[string]string{
			"symbol":   symbol,
			"interval": interval,
		},
	}
	return fetchCached[indicator.Set](ctx, s, spec, s.cfg.IndicatorTTL, func(ctx context.Context) (any, error) {
		series, err := s.PriceSeries(ctx, symbol, interval, s.cfg.OutputSize)
		if err != nil {
			return nil, err
		}
		return indicator.Compute(series), nil
	})
}

// SearchSymbol resolves a company name or partial ticker to symbol matches.
func (s *Service) SearchSymbol(ctx context.Context, keyword string) ([]model.SymbolMatch, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, model.NewFailure(model.KindInvalidArguments, false, "profile: empty search keyword")
	}

	spec := cache.KeySpec{
		Provider:  twelvedata.Name,
		Operation: "search",
		Params:    map[string]string{"keyword": keyword},
	}
	matches, _, err := fetchCached[[]model.SymbolMatch](ctx, s, spec, s.cfg.SearchTTL, func(ctx context.Context) (any, error) {
		return s.prices.SymbolSearch(ctx, keyword)
	})
	return matches, err
}

func (s *Service) archivePrices(ctx context.Context, series model.PriceSeries) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SavePriceSeries(ctx, series); err != nil {
		s.logger.Warn("archive write failed",
			"symbol", series.Symbol, "interval", series.Interval, "error", err)
	}
}

func (s *Service) archiveFundamentals(ctx context.Context, report model.FundamentalsReport) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveFundamentals(ctx, report); err != nil {
		s.logger.Warn("archive write failed", "symbol", report.Symbol, "error", err)
	}
}

// fetchCached runs one cache-aside read and decodes the entry. The returned
// time is when the served entry was stored, not when this call ran, so cache
// hits keep their original fetch time.
func fetchCached[T any](ctx context.Context, s *Service, spec cache.KeySpec, ttl time.Duration, fetch cache.FetchFunc) (T, time.Time, error) {
	var zero T
	entry, err := s.cache.GetOrFetch(ctx, spec, ttl, fetch)
	if err != nil {
		return zero, time.Time{}, err
	}
	v, err := cache.Decode[T](entry)
	if err != nil {
		return zero, time.Time{}, err
	}
	return v, entry.StoredAt, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func normalizeInterval(interval string) string {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return "1day"
	}
	return interval
}
