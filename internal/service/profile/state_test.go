package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/model"
)

func TestStockStateComposed(t *testing.T) {
	prices := &fakePrices{series: map[string]model.PriceSeries{
		"AAPL": dailySeries("AAPL", rising(60, 100, 0.5)...),
	}}
	news := &fakeNews{items: []model.NewsItem{
		{Title: "Apple beats estimates"},
		{Title: "Shares surge on record growth"},
	}}
	svc := newTestService(t, prices, healthyFunds(), news, nil)

	st := svc.StockState(context.Background(), " aapl ", "")

	assert.Equal(t, "AAPL", st.Symbol)
	assert.Equal(t, "1day", st.Interval)
	assert.False(t, st.GeneratedAt.IsZero())
	assert.Nil(t, st.Unavailable)

	require.NotNil(t, st.Technical)
	require.NotNil(t, st.Fundamental)
	require.NotNil(t, st.News)
	assert.Equal(t, "positive", st.News.Sentiment.Status)
}

func TestStockStateDegradedSection(t *testing.T) {
	prices := &fakePrices{series: map[string]model.PriceSeries{
		"AAPL": dailySeries("AAPL", rising(60, 100, 0.5)...),
	}}
	news := &fakeNews{err: model.NewFailure(model.KindUpstreamUnavailable, true, "tavily: status 503")}
	svc := newTestService(t, prices, healthyFunds(), news, nil)

	st := svc.StockState(context.Background(), "AAPL", "1day")

	assert.NotNil(t, st.Technical)
	assert.NotNil(t, st.Fundamental)
	assert.Nil(t, st.News)
	require.Contains(t, st.Unavailable, model.SectionNews)
	assert.Contains(t, st.Unavailable[model.SectionNews], "tavily: status 503")
}
