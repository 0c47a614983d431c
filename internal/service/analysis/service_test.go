package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/cache"
	"github.com/ashita-ai/ichiba/internal/llm"
	"github.com/ashita-ai/ichiba/internal/llm/llmtest"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/testutil"
)

const sampleReport = `{
	"overall_bias": "Bullish (Cautious)",
	"technical_summary": "Momentum is improving with MACD above the signal line.",
	"fundamental_summary": "Margins are healthy and revenue grew quarter over quarter.",
	"risk_factors": ["Sector rotation", "Earnings report in two weeks"]
}`

type fakeStates struct {
	state model.StockState
	calls int
}

func (f *fakeStates) StockState(_ context.Context, symbol, interval string) model.StockState {
	f.calls++
	st := f.state
	st.Symbol = symbol
	st.Interval = interval
	return st
}

func richState() model.StockState {
	return model.StockState{
		Technical: &model.TechnicalState{
			MACD: model.StatusEntry{Status: "bullish_above_zero", Color: model.ColorGreen, Detail: "line 0.5000 vs signal 0.3000"},
		},
		Fundamental: &model.FundamentalState{
			Profitability: model.StatusEntry{Status: "Healthy", Color: model.ColorGreen, Detail: "net margin 25.0%"},
		},
		News: &model.NewsState{
			Sentiment:    model.StatusEntry{Status: "positive", Color: model.ColorGreen},
			ArticleCount: 3,
		},
	}
}

func newTestService(t *testing.T, states StateProvider, client llm.Client) *Service {
	t.Helper()
	store := cache.NewMemoryStore(10 * time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	accessor := cache.NewAccessor(store, 30*time.Second, 5*time.Second, testutil.TestLogger())
	return New(accessor, states, client, Config{}, testutil.TestLogger())
}

func TestGenerateParsesReport(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text(sampleReport))
	states := &fakeStates{state: richState()}
	svc := newTestService(t, states, client)

	report, err := svc.Generate(context.Background(), " aapl ", "")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", report.Symbol)
	assert.Equal(t, "1day", report.Timeframe)
	assert.Equal(t, model.BiasBullishCautious, report.OverallBias)
	assert.Contains(t, report.TechnicalSummary, "MACD")
	assert.Len(t, report.RiskFactors, 2)
	assert.False(t, report.GeneratedAt.IsZero())

	requests := client.Requests()
	require.Len(t, requests, 1)
	req := requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "financial analyst")
	assert.Equal(t, model.RoleUser, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "AAPL")
	assert.Contains(t, req.Messages[1].Content, "bullish_above_zero")
	require.NotNil(t, req.ResponseSchema)
	assert.Equal(t, "stock_analysis", req.ResponseSchema.Name)
	assert.True(t, req.ResponseSchema.Strict)
}

func TestGenerateCachesReport(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text(sampleReport))
	states := &fakeStates{state: richState()}
	svc := newTestService(t, states, client)

	first, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.Calls(), "second read must hit the cache")
	assert.Equal(t, 1, states.calls)
}

func TestGenerateSeparateTimeframes(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text(sampleReport), llmtest.Text(sampleReport))
	states := &fakeStates{state: richState()}
	svc := newTestService(t, states, client)

	daily, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.NoError(t, err)
	weekly, err := svc.Generate(context.Background(), "AAPL", "1week")
	require.NoError(t, err)

	assert.Equal(t, "1day", daily.Timeframe)
	assert.Equal(t, "1week", weekly.Timeframe)
	assert.Equal(t, 2, client.Calls())
}

func TestGenerateRejectsUnknownBias(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text(`{"overall_bias":"Sideways","technical_summary":"x","fundamental_summary":"y","risk_factors":[]}`))
	svc := newTestService(t, &fakeStates{state: richState()}, client)

	_, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindInvalidUpstreamResponse, failure.Kind)
	assert.Contains(t, failure.Message, "Sideways")
}

func TestGenerateMalformedJSON(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text("the stock looks fine to me"))
	svc := newTestService(t, &fakeStates{state: richState()}, client)

	_, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindInvalidUpstreamResponse, failure.Kind)
}

func TestGenerateEmptyCompletion(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text(""))
	svc := newTestService(t, &fakeStates{state: richState()}, client)

	_, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindModelUnavailable, failure.Kind)
	assert.True(t, failure.Retriable)
}

func TestGenerateModelFailureNegativeCached(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.Fail(model.NewFailure(model.KindModelUnavailable, true, "llm: status 503")),
	)
	svc := newTestService(t, &fakeStates{state: richState()}, client)

	_, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.Error(t, err)
	_, err = svc.Generate(context.Background(), "AAPL", "1day")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindModelUnavailable, failure.Kind)
	assert.Equal(t, 1, client.Calls(), "the failure must be negative-cached")
}

func TestGenerateNoStateSections(t *testing.T) {
	client := llmtest.NewScriptedClient()
	svc := newTestService(t, &fakeStates{}, client)

	_, err := svc.Generate(context.Background(), "AAPL", "1day")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindUpstreamUnavailable, failure.Kind)
	assert.Equal(t, 0, client.Calls(), "an empty state must not reach the model")
}

func TestGenerateEmptySymbol(t *testing.T) {
	svc := newTestService(t, &fakeStates{state: richState()}, llmtest.NewScriptedClient())

	_, err := svc.Generate(context.Background(), "  ", "1day")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindInvalidArguments, failure.Kind)
}
