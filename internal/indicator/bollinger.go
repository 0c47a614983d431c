package indicator

import (
	"fmt"

	"github.com/ashita-ai/ichiba/internal/model"
)

const (
	// BollingerPeriod is the SMA window; bands sit two sample standard
	// deviations out.
	BollingerPeriod  = 20
	bollingerStdDevs = 2.0

	// A squeeze is a bandwidth within 10% of its trailing 120-value low.
	squeezeWindow    = 120
	squeezeThreshold = 0.1

	// Walking the band needs this many consecutive closes outside it.
	walkMinRun = 3

	extremeDeviationMult = 1.5
)

// Bollinger is the Bollinger Bands indicator with derived series (%B,
// bandwidth) and detected events. Series start at the candle one full SMA
// window in.
type Bollinger struct {
	Period    int      `json:"period"`
	Middle    []Point  `json:"middle"`
	Upper     []Point  `json:"upper"`
	Lower     []Point  `json:"lower"`
	Bandwidth []Point  `json:"bandwidth"`
	PercentB  []Point  `json:"percent_b"`
	Squeezes  []Marker `json:"squeezes,omitempty"`
	Walks     []Marker `json:"walks,omitempty"`
	Extremes  []Marker `json:"extremes,omitempty"`
}

// Latest returns the most recent bandwidth and %B values.
func (b *Bollinger) Latest() (bandwidth, percentB float64, ok bool) {
	if len(b.Bandwidth) == 0 {
		return 0, 0, false
	}
	last := len(b.Bandwidth) - 1
	return b.Bandwidth[last].Value, b.PercentB[last].Value, true
}

// ComputeBollinger computes the bands over the series.
func ComputeBollinger(candles []model.Candle) (*Bollinger, error) {
	if len(candles) < BollingerPeriod {
		return nil, insufficient("bollinger", BollingerPeriod, len(candles))
	}

	cs := closes(candles)
	n := len(cs) - BollingerPeriod + 1
	offset := BollingerPeriod - 1

	middle := make([]float64, n)
	upper := make([]float64, n)
	lower := make([]float64, n)
	bandwidth := make([]float64, n)
	percentB := make([]float64, n)

	for i := 0; i < n; i++ {
		window := cs[i : i+BollingerPeriod]
		m := mean(window)
		sd := sampleStdDev(window, m)
		middle[i] = m
		upper[i] = m + bollingerStdDevs*sd
		lower[i] = m - bollingerStdDevs*sd
		if m != 0 {
			bandwidth[i] = (upper[i] - lower[i]) / m
		}
		price := cs[i+offset]
		if width := upper[i] - lower[i]; width > 0 {
			percentB[i] = (price - lower[i]) / width
		} else {
			// Flat bands put every price at the midline.
			percentB[i] = 0.5
		}
	}

	return &Bollinger{
		Period:    BollingerPeriod,
		Middle:    points(candles, middle, offset),
		Upper:     points(candles, upper, offset),
		Lower:     points(candles, lower, offset),
		Bandwidth: points(candles, bandwidth, offset),
		PercentB:  points(candles, percentB, offset),
		Squeezes:  bollingerSqueezes(candles, bandwidth, offset),
		Walks:     bollingerWalks(candles, cs, upper, lower, offset),
		Extremes:  bollingerExtremes(candles, cs, upper, lower, offset),
	}, nil
}

// bollingerSqueezes marks points where bandwidth sits within the squeeze
// threshold of its trailing low. Every fresh low qualifies, so a volatility
// contraction produces a run of markers.
func bollingerSqueezes(candles []model.Candle, bandwidth []float64, offset int) []Marker {
	var markers []Marker
	for i := squeezeWindow - 1; i < len(bandwidth); i++ {
		low := bandwidth[i-squeezeWindow+1]
		for j := i - squeezeWindow + 2; j <= i; j++ {
			if bandwidth[j] < low {
				low = bandwidth[j]
			}
		}
		if bandwidth[i] <= low*(1+squeezeThreshold) {
			markers = append(markers, Marker{
				Timestamp: candles[i+offset].Timestamp,
				Position:  PositionBelow,
				Shape:     "circle",
				Color:     "#FFD700",
				Text:      "Squeeze",
			})
		}
	}
	return markers
}

func bollingerWalks(candles []model.Candle, cs, upper, lower []float64, offset int) []Marker {
	var markers []Marker
	var above, below int
	for i := range upper {
		price := cs[i+offset]
		switch {
		case price > upper[i]:
			above++
			below = 0
			if above >= walkMinRun {
				markers = append(markers, Marker{
					Timestamp: candles[i+offset].Timestamp,
					Position:  PositionAbove,
					Shape:     "arrowUp",
					Color:     "#00BFFF",
					Text:      fmt.Sprintf("Strong Uptrend (%d periods)", above),
				})
			}
		case price < lower[i]:
			below++
			above = 0
			if below >= walkMinRun {
				markers = append(markers, Marker{
					Timestamp: candles[i+offset].Timestamp,
					Position:  PositionBelow,
					Shape:     "arrowDown",
					Color:     "#FF4500",
					Text:      fmt.Sprintf("Strong Downtrend (%d periods)", below),
				})
			}
		default:
			above, below = 0, 0
		}
	}
	return markers
}

func bollingerExtremes(candles []model.Candle, cs, upper, lower []float64, offset int) []Marker {
	var markers []Marker
	for i := range upper {
		price := cs[i+offset]
		height := upper[i] - lower[i]
		if price > upper[i]+height*extremeDeviationMult {
			markers = append(markers, Marker{
				Timestamp: candles[i+offset].Timestamp,
				Position:  PositionAbove,
				Shape:     "triangleUp",
				Color:     "#FF00FF",
				Text:      "Extreme Deviation (Upper)",
			})
		}
		if price < lower[i]-height*extremeDeviationMult {
			markers = append(markers, Marker{
				Timestamp: candles[i+offset].Timestamp,
				Position:  PositionBelow,
				Shape:     "triangleDown",
				Color:     "#FF00FF",
				Text:      "Extreme Deviation (Lower)",
			})
		}
	}
	return markers
}
