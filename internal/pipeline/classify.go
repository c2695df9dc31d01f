package pipeline

import (
	"context"
	"errors"
	"strings"
)

// Verdict is the opaque result of running text through the classification
// service. It is computed once at message creation and never recomputed.
type Verdict struct {
	Sentiment string `json:"sentiment"`
	Toxicity  string `json:"toxicity"`
}

// NeutralVerdict is the fallback used when classification is unavailable.
// Classification is best-effort; a send never fails because of it.
func NeutralVerdict() Verdict {
	return Verdict{Sentiment: "neutral", Toxicity: "none"}
}

// ErrClassifierUnavailable is returned by classifiers that cannot reach
// their backing service.
var ErrClassifierUnavailable = errors.New("classification service unavailable")

// Classifier scores message text for sentiment and toxicity. The core only
// passes text through and stores the verdict.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Verdict, error) {
	return f(ctx, text)
}

// KeywordClassifier is a small lexicon-based classifier used as the default
// in-process implementation. Real deployments point the store at an external
// service instead.
type KeywordClassifier struct{}

var (
	positiveWords = []string{"thanks", "great", "love", "nice", "awesome", "good"}
	negativeWords = []string{"hate", "awful", "terrible", "bad", "worst"}
	toxicWords    = []string{"idiot", "stupid", "shut up", "loser"}
)

func (KeywordClassifier) Classify(_ context.Context, text string) (Verdict, error) {
	lower := strings.ToLower(text)
	v := NeutralVerdict()
	for _, w := range toxicWords {
		if strings.Contains(lower, w) {
			v.Toxicity = "high"
			break
		}
	}
	score := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			score++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score--
		}
	}
	switch {
	case score > 0:
		v.Sentiment = "positive"
	case score < 0:
		v.Sentiment = "negative"
	}
	return v, nil
}
