package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Generator turns a prompt into the model's text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeminiConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int // 0 disables limiting
	MaxRetries        int
	Temperature       float64
	HTTPClient        *http.Client
}

var _ Generator = (*GeminiClient)(nil)

// GeminiClient calls the generateContent endpoint with retries on throttling
// and server errors and a client-side request rate limit.
type GeminiClient struct {
	cfg     GeminiConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.Logger = slog.Default()
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &GeminiClient{cfg: cfg, client: client, limiter: limiter}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Generate returns the text of the first candidate. Transport failures,
// exhausted retries and non-2xx responses are returned as *ModelError;
// a reply without candidates is an empty string.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &ModelError{Op: "generate", Cause: errors.New("Gemini API key not configured")}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &ModelError{Op: "generate", Cause: errors.Wrap(err, "rate limiter")}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: c.cfg.Temperature},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := retryablehttp.NewRequestWithContext(callCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ModelError{Op: "generate", Cause: errors.Wrap(err, "failed to send request")}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ModelError{Op: "generate", Cause: errors.Wrap(err, "failed to read response")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ModelError{
			Op:    "generate",
			Cause: errors.Newf("API request failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 512)),
		}
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", &ModelError{Op: "generate", Cause: errors.Wrap(err, "failed to unmarshal response")}
	}

	if genResp.PromptFeedback.BlockReason != "" {
		slog.Warn("Prompt blocked by model", "model", c.cfg.Model, "reason", genResp.PromptFeedback.BlockReason)
	}
	if len(genResp.Candidates) == 0 {
		return "", nil
	}

	var text strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	slog.Debug("Model response",
		"model", c.cfg.Model,
		"duration", time.Since(start),
		"finish_reason", genResp.Candidates[0].FinishReason,
		"prompt_tokens", genResp.UsageMetadata.PromptTokenCount,
		"completion_tokens", genResp.UsageMetadata.CandidatesTokenCount,
		"length", text.Len())

	return text.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
