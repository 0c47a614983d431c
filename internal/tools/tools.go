package tools

import (
	"context"

	"github.com/ashita-ai/ichiba/internal/model"
)

func (r *Registry) registerAll(profiles ProfileService, analyses AnalysisService) {
	symbolProp := Property{Type: "string", Description: "Ticker symbol, e.g. AAPL"}
	timeframeProp := Property{Type: "string", Description: "Candle interval; defaults to 1day", Enum: model.Intervals()}

	r.register(tool{
		name: "get_stock_price",
		description: "Fetches recent OHLCV candles for a stock symbol. " +
			"Returns at most the 30 most recent candles plus the latest close.",
		schema: Schema{
			Properties: map[string]Property{
				"symbol":      symbolProp,
				"interval":    timeframeProp,
				"output_size": {Type: "integer", Description: "Candles to fetch upstream", Minimum: limit(1), Maximum: limit(5000)},
			},
			Required: []string{"symbol"},
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			series, err := profiles.PriceSeries(ctx,
				stringArg(args, "symbol", ""),
				stringArg(args, "interval", "1day"),
				intArg(args, "output_size", 0))
			if err != nil {
				return nil, err
			}
			return shapePriceSeries(series), nil
		},
	})

	r.register(tool{
		name: "get_stock_fundamentals",
		description: "Fetches quarterly financial statements for a stock symbol with derived " +
			"margin, growth, leverage, and liquidity metrics plus a valuation quote.",
		schema: Schema{
			Properties: map[string]Property{"symbol": symbolProp},
			Required:   []string{"symbol"},
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			report, err := profiles.Fundamentals(ctx, stringArg(args, "symbol", ""))
			if err != nil {
				return nil, err
			}
			return shapeFundamentals(report), nil
		},
	})

	r.register(tool{
		name: "search_stock_news",
		description: "Searches recent news coverage for a stock symbol. " +
			"Returns at most 8 articles with truncated bodies.",
		schema: Schema{
			Properties: map[string]Property{
				"symbol": symbolProp,
				"days":   {Type: "integer", Description: "Lookback window in days; defaults to 7", Minimum: limit(1), Maximum: limit(30)},
				"limit":  {Type: "integer", Description: "Articles to fetch upstream; defaults to 10", Minimum: limit(1), Maximum: limit(20)},
			},
			Required: []string{"symbol"},
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			digest, err := profiles.News(ctx,
				stringArg(args, "symbol", ""),
				intArg(args, "days", 0),
				intArg(args, "limit", 0))
			if err != nil {
				return nil, err
			}
			return shapeNews(digest), nil
		},
	})

	r.register(tool{
		name: "get_stock_state",
		description: "Fetches the comprehensive stock state (technical, fundamental, news) for a " +
			"given symbol and timeframe. Use this first for a broad view of a stock.",
		schema: Schema{
			Properties: map[string]Property{
				"symbol":    symbolProp,
				"timeframe": timeframeProp,
			},
			Required: []string{"symbol"},
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			return profiles.StockState(ctx,
				stringArg(args, "symbol", ""),
				stringArg(args, "timeframe", "1day")), nil
		},
	})

	r.register(tool{
		name: "generate_analysis",
		description: "Performs a comprehensive AI analysis of a stock based on its symbol and " +
			"timeframe. Returns an overall bias, technical and fundamental summaries, and risk factors.",
		schema: Schema{
			Properties: map[string]Property{
				"symbol":    symbolProp,
				"timeframe": timeframeProp,
			},
			Required: []string{"symbol"},
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			return analyses.Generate(ctx,
				stringArg(args, "symbol", ""),
				stringArg(args, "timeframe", "1day"))
		},
	})

	r.register(tool{
		name: "search_stock_symbol",
		description: "Searches for stock symbols by company name or partial ticker. " +
			"Use this when the user mentions a company and you need its symbol.",
		schema: Schema{
			Properties: map[string]Property{
				"keyword": {Type: "string", Description: "Company name or partial symbol"},
			},
			Required: []string{"keyword"},
		},
		run: func(ctx context.Context, args map[string]any) (any, error) {
			matches, err := profiles.SearchSymbol(ctx, stringArg(args, "keyword", ""))
			if err != nil {
				return nil, err
			}
			return shapeMatches(matches), nil
		},
	})

	r.register(tool{
		name: "get_market_summary",
		description: "Fetches the latest quotes for the broad-market index ETFs " +
			"(SPY, QQQ, DIA, IWM). Takes no arguments.",
		schema: Schema{},
		run: func(ctx context.Context, _ map[string]any) (any, error) {
			return shapeMarketSummary(profiles.MarketSummary(ctx)), nil
		},
	})
}
