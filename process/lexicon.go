package process

import (
	"context"
	"strings"
	"unicode"
)

var (
	positiveWords = words(`bull bullish buy boom breakout best gain gains good great growth high higher
moon opportunity optimistic positive profit profits rally record recover recovery rise rising soar soaring
strong success surge up upside win winning`)
	negativeWords = words(`bad bear bearish bubble collapse crash crashing danger down downside drop dump
fail fall falling fear fraud lose loss losses low lower negative panic plunge risk risky scam sell selloff
warning weak worst`)
)

// LexiconRater scores a text by counting words from fixed positive and negative
// lists. It needs no network and is meant for offline runs and tests.
type LexiconRater struct{}

func NewLexiconRater() *LexiconRater {
	return &LexiconRater{}
}

func (LexiconRater) Name() string {
	return "lexicon"
}

func (LexiconRater) Rate(_ context.Context, text string) (float64, error) {
	var pos, neg int
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, nil
	}

	return float64(pos-neg) / float64(pos+neg), nil
}

func words(list string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(list) {
		set[w] = true
	}
	return set
}
