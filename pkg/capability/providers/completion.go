package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	defaultCompletionURL     = "https://api.groq.com/openai/v1"
	defaultCompletionModel   = "llama-3.1-8b-instant"
	defaultRequestsPerSecond = 1.0
	completionTemperature    = 0.3
	completionMaxTokens      = 500
)

// completionClient calls an OpenAI-compatible chat completions endpoint.
type completionClient struct {
	baseURL string
	model   string
	limiter *rate.Limiter
	http    *jsonDoer
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func newCompletionClient(baseURL, apiKey, model string, rps float64, hc *http.Client, logger types.Logger) (*completionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("'api_key' is required for text generation")
	}
	if baseURL == "" {
		baseURL = defaultCompletionURL
	}
	if model == "" {
		model = defaultCompletionModel
	}
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	return &completionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		http: &jsonDoer{
			client:  hc,
			logger:  logger,
			headers: map[string]string{"Authorization": "Bearer " + apiKey},
		},
	}, nil
}

func completionPrompt(input, task string) string {
	return fmt.Sprintf("%s\n\nInput:\n\"%s\"\n\nProvide a clear, concise response.", task, input)
}

func (c *completionClient) complete(ctx context.Context, input, task string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for completion rate limit: %w", err)
	}

	body, err := c.http.do(ctx, http.MethodPost, c.baseURL+"/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: completionPrompt(input, task)}},
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(gjson.GetBytes(body, "choices.0.message.content").String()), nil
}
