package process

import "context"

// SentimentRater scores a text between -1 (very negative) and 1 (very positive).
type SentimentRater interface {
	Name() string
	Rate(ctx context.Context, text string) (float64, error)
}

func clamp(score float64) float64 {
	switch {
	case score < -1:
		return -1
	case score > 1:
		return 1
	default:
		return score
	}
}
