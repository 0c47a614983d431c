package state

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/ichiba/internal/model"
)

// Keyword lexicon for headline sentiment. Tokens are matched whole after
// lowercasing and punctuation trimming, so "gain" does not fire on
// "against".
var (
	positiveWords = wordSet("beat", "beats", "surge", "surges", "soar", "soars",
		"record", "upgrade", "upgrades", "rally", "rallies", "growth", "profit",
		"profits", "gain", "gains", "strong", "bullish", "outperform", "raises",
		"jump", "jumps", "wins", "approval", "breakthrough")
	negativeWords = wordSet("miss", "misses", "drop", "drops", "fall", "falls",
		"plunge", "plunges", "downgrade", "downgrades", "lawsuit", "recall",
		"layoff", "layoffs", "loss", "losses", "weak", "bearish", "underperform",
		"cuts", "probe", "decline", "declines", "warns", "warning", "fraud",
		"crash", "slump", "slumps")
)

// Headlines scoring at or beyond this magnitude are surfaced as significant.
const significantScore = 2

const maxSignificantHeadlines = 5

// News classifies each headline with keyword sentiment and reports the
// majority, along with the strongest headlines.
func News(items []model.NewsItem) *model.NewsState {
	ns := &model.NewsState{ArticleCount: len(items)}
	if len(items) == 0 {
		ns.Sentiment = unknownEntry("no recent coverage")
		return ns
	}

	var positive, negative, neutral int
	for _, item := range items {
		score := scoreText(item.Title)
		switch {
		case score > 0:
			positive++
		case score < 0:
			negative++
		default:
			neutral++
		}
		if score >= significantScore || score <= -significantScore {
			if len(ns.Significant) < maxSignificantHeadlines {
				ns.Significant = appendUnique(ns.Significant, item.Title)
			}
		}
	}

	detail := fmt.Sprintf("%d positive, %d negative, %d neutral", positive, negative, neutral)
	switch {
	case positive > negative && positive > neutral:
		ns.Sentiment = model.StatusEntry{Status: "positive", Color: model.ColorGreen, Detail: detail}
	case negative > positive && negative > neutral:
		ns.Sentiment = model.StatusEntry{Status: "negative", Color: model.ColorRed, Detail: detail}
	default:
		ns.Sentiment = model.StatusEntry{Status: "neutral", Color: model.ColorOrange, Detail: detail}
	}
	return ns
}

func scoreText(s string) int {
	var score int
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?'\"()[]%$")
		if positiveWords[tok] {
			score++
		}
		if negativeWords[tok] {
			score--
		}
	}
	return score
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
