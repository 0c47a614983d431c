package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFailurePreservesTypedFailures(t *testing.T) {
	orig := NewFailure(KindRateLimited, true, "limit hit after %d attempts", 3)
	wrapped := fmt.Errorf("twelvedata: time_series: %w", orig)

	got := AsFailure(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, KindRateLimited, got.Kind)
	assert.True(t, got.Retriable)
	assert.Equal(t, "limit hit after 3 attempts", got.Message)
}

func TestAsFailureCoercesPlainErrors(t *testing.T) {
	got := AsFailure(errors.New("connection reset"))
	require.NotNil(t, got)
	assert.Equal(t, KindUpstreamUnavailable, got.Kind)
	assert.False(t, got.Retriable)

	assert.Nil(t, AsFailure(nil))
}

func TestResultTaggedVariant(t *testing.T) {
	now := time.Now().UTC()
	ok := Succeed(PriceSeries{Symbol: "AAPL"}, now)
	assert.True(t, ok.Ok())
	assert.Nil(t, ok.Failure)

	failed := Fail(NewFailure(KindTimeout, false, "deadline exceeded"))
	assert.False(t, failed.Ok())
	assert.Nil(t, failed.Payload)
	assert.Equal(t, KindTimeout, failed.Failure.Kind)
}

func TestValidSection(t *testing.T) {
	for _, s := range AllSections() {
		assert.True(t, ValidSection(s), "section %q", s)
	}
	assert.False(t, ValidSection("dividends"))
}

func TestValidBias(t *testing.T) {
	for _, b := range []string{BiasBullish, BiasBearish, BiasNeutral, BiasBullishCautious, BiasBearishCautious} {
		assert.True(t, ValidBias(b), "bias %q", b)
	}
	assert.False(t, ValidBias("Sideways"))
}

func TestPriceSeriesLatest(t *testing.T) {
	_, ok := PriceSeries{}.Latest()
	assert.False(t, ok)

	s := PriceSeries{Candles: []Candle{{Close: 1}, {Close: 2}}}
	last, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 2.0, last.Close)
}

func TestMessageCloneIsDeep(t *testing.T) {
	m := Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCallRequest{{ID: "a", Name: "get_stock_price"}},
	}
	c := m.Clone()
	c.ToolCalls[0].Name = "mutated"
	assert.Equal(t, "get_stock_price", m.ToolCalls[0].Name)

	msgs := CloneMessages([]Message{m})
	msgs[0].ToolCalls[0].ID = "b"
	assert.Equal(t, "a", m.ToolCalls[0].ID)
}
