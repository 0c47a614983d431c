package profile

import (
	"context"
	"sync"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
)

// etfNames maps the tracked index ETFs to display names.
var etfNames = map[string]string{
	"SPY": "S&P 500 ETF",
	"QQQ": "Nasdaq 100 ETF",
	"DIA": "Dow Jones ETF",
	"IWM": "Russell 2000 ETF",
}

// MarketETFs lists the tracked index ETF symbols in presentation order.
func MarketETFs() []string {
	return []string{"SPY", "QQQ", "DIA", "IWM"}
}

// MarketSummary reports a quote-shaped snapshot for each tracked index ETF,
// built from the latest candle of its daily series. Partial like a profile:
// a failed symbol carries its failure, the summary itself never fails.
func (s *Service) MarketSummary(ctx context.Context) model.MarketSummary {
	symbols := MarketETFs()
	summary := model.MarketSummary{
		Quotes:    make(map[string]model.Result, len(symbols)),
		FetchedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, s.cfg.SectionTimeout)
			defer cancel()

			quote, fetchedAt, err := s.etfSnapshot(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Quotes[symbol] = model.Fail(err)
				return
			}
			summary.Quotes[symbol] = model.Succeed(quote, fetchedAt)
		}(symbol)
	}
	wg.Wait()
	return summary
}

// etfSnapshot reduces the latest daily candle to a quote-shaped snapshot.
func (s *Service) etfSnapshot(ctx context.Context, symbol string) (model.Quote, time.Time, error) {
	series, fetchedAt, err := s.priceSeries(ctx, symbol, "1day", s.cfg.OutputSize)
	if err != nil {
		return model.Quote{}, time.Time{}, err
	}
	last, ok := series.Latest()
	if !ok {
		return model.Quote{}, time.Time{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"profile: empty daily series for %s", symbol)
	}

	quote := model.Quote{
		Symbol: symbol,
		Name:   etfNames[symbol],
		Price:  last.Close,
		Change: last.Close - last.Open,
		Volume: last.Volume,
		AsOf:   last.Timestamp,
	}
	if last.Open != 0 {
		quote.ChangePct = (last.Close - last.Open) / last.Open * 100
	}
	return quote, fetchedAt, nil
}
