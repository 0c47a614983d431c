package indicator

import "github.com/ashita-ai/ichiba/internal/model"

const (
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9

	// MinMACDPoints is the shortest series MACD accepts: a slow EMA plus a
	// signal EMA worth of warm-up.
	MinMACDPoints = 34

	// Price pivots for divergence detection are extrema of a +-5 window.
	divergenceWindow = 5
)

// MACD is the moving average convergence/divergence indicator: the
// EMA12-EMA26 line, its EMA9 signal, the histogram, and detected events.
type MACD struct {
	Line        []Point  `json:"line"`
	Signal      []Point  `json:"signal"`
	Histogram   []Point  `json:"histogram"`
	Crossovers  []Marker `json:"crossovers,omitempty"`
	Divergences []Marker `json:"divergences,omitempty"`
}

// Latest returns the most recent line and signal values.
func (m *MACD) Latest() (line, signal float64, ok bool) {
	if len(m.Line) == 0 {
		return 0, 0, false
	}
	last := len(m.Line) - 1
	return m.Line[last].Value, m.Signal[last].Value, true
}

// ComputeMACD computes MACD over the series. Values run the full series
// length; the first slow-period entries are warm-up.
func ComputeMACD(candles []model.Candle) (*MACD, error) {
	if len(candles) < MinMACDPoints {
		return nil, insufficient("macd", MinMACDPoints, len(candles))
	}

	cs := closes(candles)
	fast := ema(cs, macdFastPeriod)
	slow := ema(cs, macdSlowPeriod)

	line := make([]float64, len(cs))
	for i := range cs {
		line[i] = fast[i] - slow[i]
	}
	signal := ema(line, macdSignalPeriod)
	histogram := make([]float64, len(cs))
	for i := range cs {
		histogram[i] = line[i] - signal[i]
	}

	return &MACD{
		Line:        points(candles, line, 0),
		Signal:      points(candles, signal, 0),
		Histogram:   points(candles, histogram, 0),
		Crossovers:  macdCrossovers(candles, line, signal),
		Divergences: macdDivergences(candles, cs, line),
	}, nil
}

func macdCrossovers(candles []model.Candle, line, signal []float64) []Marker {
	var markers []Marker
	for i := 1; i < len(line); i++ {
		switch {
		case line[i-1] < signal[i-1] && line[i] > signal[i]:
			markers = append(markers, Marker{
				Timestamp: candles[i].Timestamp,
				Position:  PositionAbove,
				Shape:     "arrowUp",
				Color:     "#00FF00",
				Text:      "Bullish Crossover",
			})
		case line[i-1] > signal[i-1] && line[i] < signal[i]:
			markers = append(markers, Marker{
				Timestamp: candles[i].Timestamp,
				Position:  PositionBelow,
				Shape:     "arrowDown",
				Color:     "#FF0000",
				Text:      "Bearish Crossover",
			})
		}
	}
	return markers
}

// macdDivergences compares consecutive price pivots against the MACD line:
// a lower price low with a higher MACD low is bullish, a higher price high
// with a lower MACD high is bearish.
func macdDivergences(candles []model.Candle, cs, line []float64) []Marker {
	lows := windowExtrema(cs, divergenceWindow, false)
	highs := windowExtrema(cs, divergenceWindow, true)

	var markers []Marker
	for i := 1; i < len(lows); i++ {
		prev, cur := lows[i-1], lows[i]
		if cs[cur] < cs[prev] && line[cur] > line[prev] {
			markers = append(markers, Marker{
				Timestamp: candles[cur].Timestamp,
				Position:  PositionBelow,
				Shape:     "arrowUp",
				Color:     "#008000",
				Text:      "Bullish Divergence",
			})
		}
	}
	for i := 1; i < len(highs); i++ {
		prev, cur := highs[i-1], highs[i]
		if cs[cur] > cs[prev] && line[cur] < line[prev] {
			markers = append(markers, Marker{
				Timestamp: candles[cur].Timestamp,
				Position:  PositionAbove,
				Shape:     "arrowDown",
				Color:     "#800000",
				Text:      "Bearish Divergence",
			})
		}
	}
	return markers
}
