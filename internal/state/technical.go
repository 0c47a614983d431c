package state

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/ichiba/internal/indicator"
	"github.com/ashita-ai/ichiba/internal/model"
)

// Technical derives per-indicator statuses and an overall majority trend
// from an indicator set. Indicators the series was too short for come back
// gray.
func Technical(set indicator.Set) *model.TechnicalState {
	ts := &model.TechnicalState{}

	macdEntry, macdVote, macdDivs := assessMACD(set.MACD)
	rsiEntry, rsiVote, rsiDivs := assessRSI(set.RSI)
	bollEntry, volEntry, bollVote := assessBollinger(set.Bollinger)

	ts.MACD = macdEntry
	ts.RSI = rsiEntry
	ts.Bollinger = bollEntry
	ts.Volatility = volEntry
	ts.Divergences = append(ts.Divergences, macdDivs...)
	ts.Divergences = append(ts.Divergences, rsiDivs...)
	ts.OverallTrend = overallTrend(set, macdVote+rsiVote+bollVote)
	return ts
}

func assessMACD(m *indicator.MACD) (entry model.StatusEntry, vote int, divergences []string) {
	if m == nil {
		return unknownEntry("not enough data for macd"), 0, nil
	}
	line, signal, ok := m.Latest()
	if !ok {
		return unknownEntry("not enough data for macd"), 0, nil
	}

	status := "neutral"
	switch {
	case line > signal:
		status = "bullish"
	case line < signal:
		status = "bearish"
	}

	// A crossover in the last few bars is a stronger signal than plain
	// line position.
	cutoff := recentCutoff(m.Line)
	if len(m.Crossovers) > 0 {
		last := m.Crossovers[len(m.Crossovers)-1]
		if isRecent(last, cutoff) {
			if last.Text == "Bullish Crossover" {
				status = "bullish_crossover"
			} else {
				status = "bearish_crossover"
			}
		}
	}

	switch {
	case line > 0:
		status += "_above_zero"
	case line < 0:
		status += "_below_zero"
	}

	color := model.ColorOrange
	vote = 0
	switch {
	case strings.HasPrefix(status, "bullish"):
		color = model.ColorGreen
		vote = 1
	case strings.HasPrefix(status, "bearish"):
		color = model.ColorRed
		vote = -1
	}

	for _, d := range m.Divergences {
		switch d.Text {
		case "Bullish Divergence":
			divergences = appendUnique(divergences, "bullish_macd_divergence")
		case "Bearish Divergence":
			divergences = appendUnique(divergences, "bearish_macd_divergence")
		}
	}

	entry = model.StatusEntry{
		Status: status,
		Color:  color,
		Detail: fmt.Sprintf("line %.4f vs signal %.4f", line, signal),
	}
	return entry, vote, divergences
}

func assessRSI(r *indicator.RSI) (entry model.StatusEntry, vote int, divergences []string) {
	if r == nil {
		return unknownEntry("not enough data for rsi"), 0, nil
	}
	latest, ok := r.Latest()
	if !ok {
		return unknownEntry("not enough data for rsi"), 0, nil
	}

	var status, color string
	switch {
	case latest > indicator.Overbought:
		status, color, vote = "overbought", model.ColorOrange, -1
	case latest < indicator.Oversold:
		status, color, vote = "oversold", model.ColorOrange, 1
	default:
		status, color, vote = "neutral", model.ColorGreen, 0
	}

	if len(r.BullishDivergences) > 0 {
		divergences = append(divergences, "bullish_rsi_divergence")
	}
	if len(r.BearishDivergences) > 0 {
		divergences = append(divergences, "bearish_rsi_divergence")
	}

	entry = model.StatusEntry{
		Status: status,
		Color:  color,
		Detail: fmt.Sprintf("rsi %.1f", latest),
	}
	return entry, vote, divergences
}

func assessBollinger(b *indicator.Bollinger) (status, volatility model.StatusEntry, vote int) {
	if b == nil {
		return unknownEntry("not enough data for bollinger"), unknownEntry(""), 0
	}
	bandwidth, percentB, ok := b.Latest()
	if !ok {
		return unknownEntry("not enough data for bollinger"), unknownEntry(""), 0
	}

	var volStatus string
	switch {
	case bandwidth > 0.10:
		volStatus = "high"
	case bandwidth < 0.02:
		volStatus = "low"
	default:
		volStatus = "moderate"
	}
	volColor := model.ColorOrange
	if volStatus == "moderate" {
		volColor = model.ColorGreen
	}
	volatility = model.StatusEntry{
		Status: volStatus,
		Color:  volColor,
		Detail: fmt.Sprintf("bandwidth %.3f", bandwidth),
	}

	// Band events take precedence over the volatility reading: walks over
	// squeezes, squeezes over plain expansion state.
	cutoff := recentCutoff(b.Bandwidth)
	bandStatus, bandColor := "", ""
	if len(b.Squeezes) > 0 && isRecent(b.Squeezes[len(b.Squeezes)-1], cutoff) {
		bandStatus, bandColor = "squeezing", model.ColorOrange
	}
	if len(b.Walks) > 0 {
		last := b.Walks[len(b.Walks)-1]
		if isRecent(last, cutoff) {
			if strings.Contains(last.Text, "Uptrend") {
				bandStatus, bandColor, vote = "walking_upper_band", model.ColorGreen, 1
			} else {
				bandStatus, bandColor, vote = "walking_lower_band", model.ColorRed, -1
			}
		}
	}
	if bandStatus == "" {
		switch volStatus {
		case "low":
			bandStatus, bandColor = "contracting", model.ColorOrange
		case "high":
			bandStatus, bandColor = "expanding", model.ColorOrange
		default:
			bandStatus, bandColor = "neutral", model.ColorGreen
		}
	}

	status = model.StatusEntry{
		Status: bandStatus,
		Color:  bandColor,
		Detail: fmt.Sprintf("%%B %.2f", percentB),
	}
	return status, volatility, vote
}

func overallTrend(set indicator.Set, votes int) model.StatusEntry {
	if set.Empty() {
		return unknownEntry("no indicators available")
	}
	switch {
	case votes > 0:
		return model.StatusEntry{Status: "uptrend", Color: model.ColorGreen}
	case votes < 0:
		return model.StatusEntry{Status: "downtrend", Color: model.ColorRed}
	default:
		return model.StatusEntry{Status: "sideways", Color: model.ColorOrange}
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
