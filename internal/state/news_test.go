package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/model"
)

func headlines(titles ...string) []model.NewsItem {
	items := make([]model.NewsItem, len(titles))
	for i, title := range titles {
		items[i] = model.NewsItem{Title: title, URL: fmt.Sprintf("https://example.com/%d", i)}
	}
	return items
}

func TestNewsEmpty(t *testing.T) {
	ns := News(nil)

	assert.Equal(t, 0, ns.ArticleCount)
	assert.Equal(t, "unknown", ns.Sentiment.Status)
	assert.Equal(t, model.ColorGray, ns.Sentiment.Color)
	assert.Equal(t, "no recent coverage", ns.Sentiment.Detail)
	assert.Empty(t, ns.Significant)
}

func TestNewsPositiveMajority(t *testing.T) {
	ns := News(headlines(
		"Apple beats estimates",
		"Shares surge on record growth",
		"Quiet session for tech",
	))

	assert.Equal(t, 3, ns.ArticleCount)
	assert.Equal(t, "positive", ns.Sentiment.Status)
	assert.Equal(t, model.ColorGreen, ns.Sentiment.Color)
	assert.Equal(t, "2 positive, 0 negative, 1 neutral", ns.Sentiment.Detail)
	assert.Equal(t, []string{"Shares surge on record growth"}, ns.Significant)
}

func TestNewsNegativeMajority(t *testing.T) {
	ns := News(headlines(
		"Stock plunges after lawsuit filing",
		"Company cuts outlook",
		"Regulators widen probe",
	))

	assert.Equal(t, "negative", ns.Sentiment.Status)
	assert.Equal(t, model.ColorRed, ns.Sentiment.Color)
	assert.Equal(t, []string{"Stock plunges after lawsuit filing"}, ns.Significant)
}

func TestNewsTieIsNeutral(t *testing.T) {
	ns := News(headlines("Profit tops forecasts", "Shares fall at open"))

	assert.Equal(t, "neutral", ns.Sentiment.Status)
	assert.Equal(t, model.ColorOrange, ns.Sentiment.Color)
	assert.Equal(t, "1 positive, 1 negative, 0 neutral", ns.Sentiment.Detail)
}

func TestNewsWholeTokenMatching(t *testing.T) {
	// "against" must not trigger on the embedded "gain".
	ns := News(headlines("Protest against hedging rules"))

	assert.Equal(t, "neutral", ns.Sentiment.Status)
	assert.Equal(t, "0 positive, 0 negative, 1 neutral", ns.Sentiment.Detail)
}

func TestNewsSignificantCapAndDedup(t *testing.T) {
	titles := make([]string, 0, 7)
	for i := 0; i < 6; i++ {
		titles = append(titles, fmt.Sprintf("Fraud probe widens at unit %d", i))
	}
	titles = append(titles, titles[0])

	ns := News(headlines(titles...))

	require.Len(t, ns.Significant, maxSignificantHeadlines)
	assert.Equal(t, "Fraud probe widens at unit 0", ns.Significant[0])
	assert.Equal(t, "Fraud probe widens at unit 4", ns.Significant[4])
}

func TestScoreText(t *testing.T) {
	cases := []struct {
		title string
		score int
	}{
		{"Record profits beat expectations!", 3},
		{"Warns of weak demand; shares drop", -3},
		{"Strong quarter despite lawsuit", 0},
		{"Chipmaker gains.", 1},
		{"Nothing notable happened", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.score, scoreText(tc.title), "title %q", tc.title)
	}
}
