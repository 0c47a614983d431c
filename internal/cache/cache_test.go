package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/model"
)

func TestKeySpecCanonicalOrder(t *testing.T) {
	a := KeySpec{
		Provider:  "twelvedata",
		Operation: "price",
		Params:    map[string]string{"symbol": "AAPL", "interval": "1day"},
	}
	b := KeySpec{
		Provider:  "twelvedata",
		Operation: "price",
		Params:    map[string]string{"interval": "1day", "symbol": "AAPL"},
	}
	assert.Equal(t, a.Key(), b.Key(), "parameter order must not change the key")
	assert.Equal(t, "twelvedata:price:interval=1day,symbol=aapl", a.Key())
}

func TestKeySpecCaseAndWhitespaceFolding(t *testing.T) {
	a := KeySpec{Provider: "FMP", Operation: "Quote", Params: map[string]string{"symbol": " aapl "}}
	b := KeySpec{Provider: "fmp", Operation: "quote", Params: map[string]string{"symbol": "AAPL"}}
	assert.Equal(t, b.Key(), a.Key())
}

func TestKeySpecEscapesSeparators(t *testing.T) {
	a := KeySpec{Provider: "tavily", Operation: "news", Params: map[string]string{"q": "a=b,c"}}
	b := KeySpec{Provider: "tavily", Operation: "news", Params: map[string]string{"q": "a", "extra": "b,c"}}
	assert.NotEqual(t, a.Key(), b.Key(), "separators inside values must not collide")
}

func TestKeySpecNoParams(t *testing.T) {
	s := KeySpec{Provider: "fmp", Operation: "market_summary"}
	assert.Equal(t, "fmp:market_summary", s.Key())
}

func TestDecodePayload(t *testing.T) {
	e := Entry{Key: "k", Value: []byte(`{"symbol":"AAPL","price":123.45}`)}

	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	q, err := Decode[quote](e)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 123.45, q.Price)
}

func TestDecodeNegativeEntry(t *testing.T) {
	f := model.NewFailure(model.KindRateLimited, true, "slow down")
	e := Entry{Key: "k", Failure: f}

	_, err := Decode[map[string]any](e)
	require.Error(t, err)
	got := model.AsFailure(err)
	assert.Equal(t, model.KindRateLimited, got.Kind)
}

func TestDecodeCorruptPayload(t *testing.T) {
	e := Entry{Key: "k", Value: []byte(`{nope`)}
	_, err := Decode[map[string]any](e)
	assert.Error(t, err)
}

func TestEntryFreshness(t *testing.T) {
	now := time.Now()
	e := Entry{StoredAt: now.Add(-2 * time.Second), TTL: 5 * time.Second}
	assert.True(t, e.fresh(now))

	e.StoredAt = now.Add(-6 * time.Second)
	assert.False(t, e.fresh(now))
}
