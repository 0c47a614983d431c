// Package indicator computes technical indicators over candle series: MACD,
// RSI, and Bollinger Bands, each with its event detectors (crossovers,
// divergences, squeezes, band walks). All functions are pure; series must be
// ordered oldest first, the way internal/provider returns them.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
)

// ErrInsufficientData reports a series too short for an indicator. Callers
// usually treat it as an empty result rather than a hard failure.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// Marker positions, matching the lightweight-charts vocabulary the UI
// renders annotations with.
const (
	PositionAbove = "aboveBar"
	PositionBelow = "belowBar"
)

// Point is one indicator value at a candle timestamp.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Marker is one chart annotation produced by an event detector.
type Marker struct {
	Timestamp time.Time `json:"timestamp"`
	Position  string    `json:"position"`
	Shape     string    `json:"shape"`
	Color     string    `json:"color"`
	Text      string    `json:"text"`
}

// Set bundles every indicator computed for one series. A nil indicator means
// the series was too short for it.
type Set struct {
	Symbol    string     `json:"symbol"`
	Interval  string     `json:"interval"`
	MACD      *MACD      `json:"macd,omitempty"`
	RSI       *RSI       `json:"rsi,omitempty"`
	Bollinger *Bollinger `json:"bollinger,omitempty"`
}

// Empty reports whether no indicator could be computed.
func (s Set) Empty() bool {
	return s.MACD == nil && s.RSI == nil && s.Bollinger == nil
}

// Compute derives every indicator the series has enough candles for.
func Compute(series model.PriceSeries) Set {
	s := Set{Symbol: series.Symbol, Interval: series.Interval}
	if m, err := ComputeMACD(series.Candles); err == nil {
		s.MACD = m
	}
	if r, err := ComputeRSI(series.Candles); err == nil {
		s.RSI = r
	}
	if b, err := ComputeBollinger(series.Candles); err == nil {
		s.Bollinger = b
	}
	return s
}

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%w: %s needs %d closes, got %d", ErrInsufficientData, name, need, got)
}

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// points maps values onto candle timestamps starting at offset; values must
// cover candles[offset:].
func points(candles []model.Candle, values []float64, offset int) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{Timestamp: candles[offset+i].Timestamp, Value: v}
	}
	return out
}

// ema is the exponential moving average seeded from the first value, with
// span smoothing alpha = 2/(period+1).
func ema(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev uses the n-1 denominator.
func sampleStdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
