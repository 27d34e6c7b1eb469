package process

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sashabaranov/go-openai"
)

const (
	ratingAttempts = 3
	maxRatingRunes = 12000
)

var (
	ErrNoRating   = errors.New("no usable rating in answer")
	ratingPattern = regexp.MustCompile(`-?\d+`)
)

type OpenAIRater struct {
	client *openai.Client
	model  string
}

func NewOpenAIRater(client *openai.Client, model string) *OpenAIRater {
	if model == "" {
		model = openai.GPT4
	}

	return &OpenAIRater{
		client: client,
		model:  model,
	}
}

func (r *OpenAIRater) Name() string {
	return r.model
}

// Rate asks the model for a rating between -100 and 100. Answers without a
// number are retried a few times before giving up.
func (r *OpenAIRater) Rate(ctx context.Context, text string) (float64, error) {
	const ratePrompt = `Rate the sentiment of the text the user gives you on a scale from -100 to 100.
-100 is very negative, -50 negative, 0 neutral, 50 positive and 100 very positive. Values in between are fine.
Answer in exactly this format and nothing else:
sentiment_rating = <rating>
`

	if runes := []rune(text); len(runes) > maxRatingRunes {
		text = string(runes[:maxRatingRunes])
	}

	for attempt := 1; attempt <= ratingAttempts; attempt++ {
		resp, err := r.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model:       r.model,
				MaxTokens:   15,
				Temperature: 0,
				Messages: []openai.ChatCompletionMessage{
					{
						Role:    openai.ChatMessageRoleSystem,
						Content: ratePrompt,
					},
					{
						Role:    openai.ChatMessageRoleUser,
						Content: text,
					},
				},
			})
		if err != nil {
			return 0, fmt.Errorf("failed to fetch rating: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		rating, ok := parseRating(resp.Choices[len(resp.Choices)-1].Message.Content)
		if ok {
			return clamp(rating / 100), nil
		}
	}

	return 0, fmt.Errorf("%w after %d attempts", ErrNoRating, ratingAttempts)
}

func parseRating(answer string) (float64, bool) {
	match := ratingPattern.FindString(answer)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}

	return float64(n), true
}
