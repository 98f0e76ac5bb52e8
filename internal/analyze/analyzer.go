// Package analyze enriches warnings with a free-text risk assessment
// before delivery. Enrichment is best effort: every failure degrades to a
// fixed placeholder analysis and never blocks the stream.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/crimson-sun/sentinel/internal/model"
)

// Analyzer produces an analysis for one warning.
type Analyzer interface {
	Analyze(ctx context.Context, category string, payload model.RawEvent, warningID int64) model.Analysis
}

// Placeholder returns the fixed analysis used when no analysis service is
// configured or the service is unavailable.
func Placeholder() model.Analysis {
	return model.Analysis{
		RootCause: []string{"Analysis service temporarily unavailable"},
		Impact:    []string{"Unable to assess risk level"},
		NextSteps: []string{"Retry analysis", "Manual review recommended"},
	}
}

// Static is an Analyzer that always returns the placeholder. Injected at
// startup when no API key is configured.
type Static struct{}

func (Static) Analyze(context.Context, string, model.RawEvent, int64) model.Analysis {
	return Placeholder()
}

const (
	openaiBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultModel      = "gpt-4o-mini"
	openaiMaxRetries  = 2
	openaiRetryDelay  = time.Second
	defaultHTTPExpiry = 30 * time.Second
)

// OpenAI calls the OpenAI chat completions API for analysis.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// OpenAIOption configures the OpenAI analyzer.
type OpenAIOption func(*OpenAI)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) { o.baseURL = url }
}

// WithModel overrides the model name.
func WithModel(m string) OpenAIOption {
	return func(o *OpenAI) {
		if m != "" {
			o.model = m
		}
	}
}

// NewOpenAI creates an analyzer using the given API key.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		apiKey:  apiKey,
		baseURL: openaiBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: defaultHTTPExpiry},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze returns a structured assessment of the warning. Any failure
// (transport, non-2xx, unparseable content) yields the placeholder.
func (o *OpenAI) Analyze(ctx context.Context, category string, payload model.RawEvent, warningID int64) model.Analysis {
	analysis, err := o.complete(ctx, category, payload)
	if err != nil {
		o.logger.Warn("analysis degraded to placeholder", "warning_id", warningID, "error", err)
		return Placeholder()
	}
	return analysis
}

func (o *OpenAI) complete(ctx context.Context, category string, payload model.RawEvent) (model.Analysis, error) {
	prompt, err := buildPrompt(category, payload)
	if err != nil {
		return model.Analysis{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model:          o.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return model.Analysis{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= openaiMaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(openaiRetryDelay * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				t.Stop()
				return model.Analysis{}, ctx.Err()
			case <-t.C:
			}
		}

		analysis, err := o.post(ctx, body)
		if err == nil {
			return analysis, nil
		}
		lastErr = err
	}
	return model.Analysis{}, lastErr
}

func (o *OpenAI) post(ctx context.Context, body []byte) (model.Analysis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return model.Analysis{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return model.Analysis{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Analysis{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Analysis{}, fmt.Errorf("analyze: HTTP %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return model.Analysis{}, fmt.Errorf("analyze: decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return model.Analysis{}, fmt.Errorf("analyze: empty choices")
	}

	var analysis model.Analysis
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &analysis); err != nil {
		return model.Analysis{}, fmt.Errorf("analyze: decode analysis content: %w", err)
	}
	if len(analysis.RootCause) == 0 && len(analysis.Impact) == 0 && len(analysis.NextSteps) == 0 {
		return model.Analysis{}, fmt.Errorf("analyze: empty analysis")
	}
	return analysis, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// buildPrompt renders the analyst prompt for one warning.
func buildPrompt(category string, payload model.RawEvent) (string, error) {
	payloadJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are a GitHub security and DevOps expert analyzing repository events that may pose risks.

You will be given a warning type and the corresponding event payload. Analyze the event and respond with a JSON object of the shape {"root_cause": [string], "impact": [string], "next_steps": [string]}.

Warning Type: %s
Event Payload: %s

Instructions:
- Include payload-specific information; use the names of the actor, repo, and branch where applicable
- Provide 2-4 specific, actionable root causes
- List 2-4 concrete impacts that could affect the organization
- Suggest 3-5 specific, prioritized next steps
- Be concise but informative and avoid generic responses`, category, payloadJSON), nil
}
