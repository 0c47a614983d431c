package indicator

import "github.com/ashita-ai/ichiba/internal/model"

const (
	// RSIPeriod is the Wilder smoothing period.
	RSIPeriod = 14

	// Overbought and Oversold are the classic RSI thresholds.
	Overbought = 70.0
	Oversold   = 30.0

	// Divergences are searched among pivots of the trailing window.
	rsiDivergenceLookback = 60
	rsiPeakProminence     = 1.0
)

// RSIDivergence pairs a price swing with the contradicting RSI swing.
type RSIDivergence struct {
	PriceStart Point `json:"price_start"`
	PriceEnd   Point `json:"price_end"`
	RSIStart   Point `json:"rsi_start"`
	RSIEnd     Point `json:"rsi_end"`
}

// RSI is the relative strength index with detected divergences. Values start
// at the candle one full period in; earlier candles have no defined RSI.
type RSI struct {
	Period             int             `json:"period"`
	Values             []Point         `json:"values"`
	BullishDivergences []RSIDivergence `json:"bullish_divergences,omitempty"`
	BearishDivergences []RSIDivergence `json:"bearish_divergences,omitempty"`
}

// Latest returns the most recent RSI value.
func (r *RSI) Latest() (float64, bool) {
	if len(r.Values) == 0 {
		return 0, false
	}
	return r.Values[len(r.Values)-1].Value, true
}

// ComputeRSI computes the Wilder RSI (alpha = 1/period, seeded with a simple
// average of the first period's gains and losses).
func ComputeRSI(candles []model.Candle) (*RSI, error) {
	period := RSIPeriod
	if len(candles) < period+1 {
		return nil, insufficient("rsi", period+1, len(candles))
	}

	cs := closes(candles)
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := cs[i] - cs[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	values := make([]float64, 0, len(cs)-period)
	values = append(values, rsiValue(avgGain, avgLoss))
	for i := period + 1; i < len(cs); i++ {
		delta := cs[i] - cs[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values = append(values, rsiValue(avgGain, avgLoss))
	}

	r := &RSI{Period: period, Values: points(candles, values, period)}
	r.BullishDivergences, r.BearishDivergences = rsiDivergences(candles, cs, values, period)
	return r, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// rsiDivergences pairs recent price pivots with their nearest RSI pivots.
// Bullish: lower price low, higher RSI low. Bearish: higher price high,
// lower RSI high. offset converts RSI slice indices to candle indices.
func rsiDivergences(candles []model.Candle, cs, rsi []float64, offset int) (bullish, bearish []RSIDivergence) {
	pricePeaks := findPeaks(cs, rsiPeakProminence)
	priceTroughs := findPeaks(negate(cs), rsiPeakProminence)
	rsiPeaks := shiftIndices(findPeaks(rsi, rsiPeakProminence), offset)
	rsiTroughs := shiftIndices(findPeaks(negate(rsi), rsiPeakProminence), offset)

	cutoff := len(cs) - rsiDivergenceLookback

	rsiAt := func(candleIdx int) Point {
		return Point{Timestamp: candles[candleIdx].Timestamp, Value: rsi[candleIdx-offset]}
	}
	priceAt := func(candleIdx int) Point {
		return Point{Timestamp: candles[candleIdx].Timestamp, Value: cs[candleIdx]}
	}

	recentPeaks := recentIndices(pricePeaks, cutoff)
	for i := 0; i < len(recentPeaks)-1; i++ {
		for j := i + 1; j < len(recentPeaks); j++ {
			p1, p2 := recentPeaks[i], recentPeaks[j]
			if cs[p2] <= cs[p1] {
				continue
			}
			r1 := nearestIndex(rsiPeaks, p1)
			r2 := nearestIndex(rsiPeaks, p2)
			if r1 < 0 || r2 < 0 || r1 == r2 {
				continue
			}
			if rsi[r2-offset] < rsi[r1-offset] {
				bearish = append(bearish, RSIDivergence{
					PriceStart: priceAt(p1), PriceEnd: priceAt(p2),
					RSIStart: rsiAt(r1), RSIEnd: rsiAt(r2),
				})
			}
		}
	}

	recentTroughs := recentIndices(priceTroughs, cutoff)
	for i := 0; i < len(recentTroughs)-1; i++ {
		for j := i + 1; j < len(recentTroughs); j++ {
			t1, t2 := recentTroughs[i], recentTroughs[j]
			if cs[t2] >= cs[t1] {
				continue
			}
			r1 := nearestIndex(rsiTroughs, t1)
			r2 := nearestIndex(rsiTroughs, t2)
			if r1 < 0 || r2 < 0 || r1 == r2 {
				continue
			}
			if rsi[r2-offset] > rsi[r1-offset] {
				bullish = append(bullish, RSIDivergence{
					PriceStart: priceAt(t1), PriceEnd: priceAt(t2),
					RSIStart: rsiAt(r1), RSIEnd: rsiAt(r2),
				})
			}
		}
	}
	return bullish, bearish
}

func shiftIndices(indices []int, offset int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = idx + offset
	}
	return out
}

func recentIndices(indices []int, cutoff int) []int {
	var out []int
	for _, idx := range indices {
		if idx >= cutoff {
			out = append(out, idx)
		}
	}
	return out
}
