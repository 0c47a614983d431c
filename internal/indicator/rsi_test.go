package indicator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRSIInsufficientData(t *testing.T) {
	_, err := ComputeRSI(dailyCandles(repeat(100, RSIPeriod)...))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestComputeRSIAllGains(t *testing.T) {
	cs := make([]float64, RSIPeriod+1)
	for i := range cs {
		cs[i] = 100 + float64(i)
	}
	candles := dailyCandles(cs...)

	r, err := ComputeRSI(candles)
	require.NoError(t, err)

	require.Len(t, r.Values, 1)
	assert.InDelta(t, 100.0, r.Values[0].Value, 1e-12)
	assert.Equal(t, candles[RSIPeriod].Timestamp, r.Values[0].Timestamp)

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.InDelta(t, 100.0, latest, 1e-12)
}

func TestComputeRSIFlatSeries(t *testing.T) {
	r, err := ComputeRSI(dailyCandles(repeat(100, RSIPeriod+1)...))
	require.NoError(t, err)

	require.Len(t, r.Values, 1)
	assert.InDelta(t, 50.0, r.Values[0].Value, 1e-12)
}

func TestComputeRSIAlternatingSeries(t *testing.T) {
	// +1/-1 alternation balances gains and losses: RSI 50. One extra gain
	// tips the Wilder averages to 7.5/14 vs 6.5/14.
	cs := make([]float64, RSIPeriod+2)
	for i := range cs {
		if i%2 == 0 {
			cs[i] = 100
		} else {
			cs[i] = 101
		}
	}

	r, err := ComputeRSI(dailyCandles(cs...))
	require.NoError(t, err)

	require.Len(t, r.Values, 2)
	assert.InDelta(t, 50.0, r.Values[0].Value, 1e-9)
	assert.InDelta(t, 100.0-100.0/(1.0+7.5/6.5), r.Values[1].Value, 1e-9)
}

func TestRSIBearishDivergence(t *testing.T) {
	// Higher price high at index 15, lower RSI high.
	cs := repeat(10, 20)
	cs[5] = 12
	cs[15] = 14
	rsi := repeat(50, 20)
	rsi[5] = 80
	rsi[15] = 70
	candles := dailyCandles(cs...)

	bullish, bearish := rsiDivergences(candles, cs, rsi, 0)

	assert.Empty(t, bullish)
	require.Len(t, bearish, 1)
	d := bearish[0]
	assert.Equal(t, 12.0, d.PriceStart.Value)
	assert.Equal(t, 14.0, d.PriceEnd.Value)
	assert.Equal(t, 80.0, d.RSIStart.Value)
	assert.Equal(t, 70.0, d.RSIEnd.Value)
	assert.Equal(t, candles[15].Timestamp, d.PriceEnd.Timestamp)
}

func TestRSIBullishDivergence(t *testing.T) {
	// Lower price low at index 15, higher RSI low.
	cs := repeat(10, 20)
	cs[5] = 8
	cs[15] = 6
	rsi := repeat(50, 20)
	rsi[5] = 30
	rsi[15] = 40
	candles := dailyCandles(cs...)

	bullish, bearish := rsiDivergences(candles, cs, rsi, 0)

	assert.Empty(t, bearish)
	require.Len(t, bullish, 1)
	d := bullish[0]
	assert.Equal(t, 8.0, d.PriceStart.Value)
	assert.Equal(t, 6.0, d.PriceEnd.Value)
	assert.Equal(t, 30.0, d.RSIStart.Value)
	assert.Equal(t, 40.0, d.RSIEnd.Value)
}
