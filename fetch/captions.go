package fetch

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/adam7171512/scrape/model"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"
)

const (
	timedTextURL    = "https://www.youtube.com/api/timedtext"
	maxCaptionBytes = 10 << 20
)

var cueTimestamp = regexp.MustCompile(`<\d{2}:\d{2}:\d{2}\.\d{3}>`)

type CaptionsConfig struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
	Limiter  *rate.Limiter
}

// Captions reads the platform's own subtitles as a transcript.
type Captions struct {
	client   *http.Client
	baseURL  string
	language string
	limiter  *rate.Limiter
	policy   *bluemonday.Policy
}

func NewCaptions(cfg CaptionsConfig) *Captions {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = timedTextURL
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Captions{
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		language: language,
		limiter:  cfg.Limiter,
		policy:   bluemonday.StrictPolicy(),
	}
}

func (c *Captions) FetchTranscript(ctx context.Context, id model.YoutubeVideoID) (*string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("v", string(id))
	params.Set("lang", c.language)
	params.Set("fmt", "vtt")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create caption request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, nil
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to fetch captions: status %d", res.StatusCode)
	}

	text, err := c.parseVTT(io.LimitReader(res.Body, maxCaptionBytes))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	return &text, nil
}

// parseVTT keeps only cue text, with markup removed and rolling caption
// repeats collapsed. Lines before a cue timing line are cue identifiers.
func (c *Captions) parseVTT(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lines []string
		block []string
		cue   bool
		last  string
	)
	flush := func() {
		if cue {
			for _, line := range block {
				line = cueTimestamp.ReplaceAllString(line, "")
				line = strings.Join(strings.Fields(html.UnescapeString(c.policy.Sanitize(line))), " ")
				if line == "" || line == last {
					continue
				}
				lines = append(lines, line)
				last = line
			}
		}
		block, cue = block[:0], false
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			block, cue = block[:0], true
		default:
			block = append(block, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read captions: %w", err)
	}
	flush()

	return strings.Join(lines, " "), nil
}
