// Package gemini provides a client for the Google Gemini API, constrained
// to JSON-mode generation.
package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// Client defines the Gemini operations used by the pipeline.
type Client interface {
	// GenerateJSON runs a generation with response MIME type forced to
	// application/json and returns the first text candidate.
	GenerateJSON(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Close() error
}

// GenerateRequest is our own request type for GenerateJSON.
type GenerateRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float32
	MaxTokens   *int32
}

// GenerateResponse is our own response type from GenerateJSON.
type GenerateResponse struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
}

// sdkClient implements Client using the official generative-ai-go SDK.
type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini client backed by the SDK.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, eris.New("gemini: api key is empty")
	}

	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	cl, err := genai.NewClient(ctx, all...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: cl}, nil
}

func (c *sdkClient) Close() error {
	return c.client.Close()
}

func (c *sdkClient) GenerateJSON(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, eris.New("gemini: model is empty")
	}

	m := c.client.GenerativeModel(model)
	cfg := genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	m.GenerationConfig = cfg

	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	// Small in-client retry for transient API failures. The caller owns
	// semantic retries (re-extraction after a verifier FAIL).
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, genai.Text(req.User))
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}

		text := firstText(resp)
		if text == "" {
			return nil, eris.New("gemini: empty response")
		}

		out := &GenerateResponse{Text: strings.TrimSpace(text)}
		if resp.UsageMetadata != nil {
			out.Usage = TokenUsage{
				InputTokens:  resp.UsageMetadata.PromptTokenCount,
				OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			}
		}
		return out, nil
	}
	return nil, eris.Wrap(lastErr, "gemini: generate content")
}

// firstText returns the first text part across candidates.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
