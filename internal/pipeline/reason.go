package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-legal/evidence-cli/internal/model"
	"github.com/meridian-legal/evidence-cli/internal/resilience"
	"github.com/meridian-legal/evidence-cli/pkg/anthropic"
	"github.com/meridian-legal/evidence-cli/pkg/gemini"
)

// Reasoner is the pipeline's view of a reasoning service: one extraction
// call and one verification call per pass, both answering strict JSON. Any
// error, including a malformed response, becomes a MODEL_ERROR for the cell
// that made the call.
type Reasoner interface {
	Extract(ctx context.Context, query model.FieldQuery, profile model.QualityProfile, evidence []model.EvidenceItem) (model.ExtractionResult, error)
	Verify(ctx context.Context, query model.FieldQuery, value, rawText string, evidence []model.EvidenceItem) (model.VerificationResult, error)

	// ExtractionModel names the model the profile maps to, recorded on
	// result rows.
	ExtractionModel(profile model.QualityProfile) string

	// Prime warms any provider-side prompt cache before a run fans out.
	// Best-effort: failures are logged, never fatal.
	Prime(ctx context.Context)
}

// ReasonerModels maps quality profiles to provider model names.
type ReasonerModels struct {
	High     string `yaml:"high" mapstructure:"high"`
	Balanced string `yaml:"balanced" mapstructure:"balanced"`
	Fast     string `yaml:"fast" mapstructure:"fast"`
	Verifier string `yaml:"verifier" mapstructure:"verifier"`
}

// ForProfile returns the extraction model for the profile. The balanced
// model is the fallback when a tier has no mapping.
func (m ReasonerModels) ForProfile(profile model.QualityProfile) string {
	switch profile {
	case model.ProfileHigh:
		if m.High != "" {
			return m.High
		}
	case model.ProfileFast:
		if m.Fast != "" {
			return m.Fast
		}
	}
	return m.Balanced
}

// VerifierModel returns the verifier model, defaulting to the fast tier so
// verification stays cheap.
func (m ReasonerModels) VerifierModel() string {
	if m.Verifier != "" {
		return m.Verifier
	}
	if m.Fast != "" {
		return m.Fast
	}
	return m.Balanced
}

// newReasonerBreaker guards one reasoning service. All cells of a run share
// it, so a dead service fails fast instead of timing out once per cell.
func newReasonerBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
}

// anthropicReasoner adapts the Anthropic client, with the run-shared system
// prompts carried as 1-hour-TTL cached blocks.
type anthropicReasoner struct {
	client  anthropic.Client
	models  ReasonerModels
	breaker *resilience.CircuitBreaker
}

// NewAnthropicReasoner wraps an Anthropic client as a Reasoner.
func NewAnthropicReasoner(client anthropic.Client, models ReasonerModels) Reasoner {
	return &anthropicReasoner{client: client, models: models, breaker: newReasonerBreaker()}
}

func (r *anthropicReasoner) ExtractionModel(profile model.QualityProfile) string {
	return r.models.ForProfile(profile)
}

func (r *anthropicReasoner) Prime(ctx context.Context) {
	req := anthropic.MessageRequest{
		Model:     r.models.VerifierModel(),
		MaxTokens: 1,
		System:    anthropic.BuildCachedSystemBlocks(extractSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: "ok"}},
	}
	if _, err := anthropic.PrimerRequest(ctx, r.client, req); err != nil {
		zap.L().Warn("pipeline: prompt cache primer failed", zap.Error(err))
	}
}

func (r *anthropicReasoner) Extract(ctx context.Context, query model.FieldQuery, profile model.QualityProfile, evidence []model.EvidenceItem) (model.ExtractionResult, error) {
	modelName := r.models.ForProfile(profile)
	text, err := r.generate(ctx, modelName, extractSystemPrompt, extractUserPrompt(query, profile, evidence), 2048, "extract")
	if err != nil {
		return model.ExtractionResult{}, err
	}
	return parseExtraction(text, len(evidence))
}

func (r *anthropicReasoner) Verify(ctx context.Context, query model.FieldQuery, value, rawText string, evidence []model.EvidenceItem) (model.VerificationResult, error) {
	text, err := r.generate(ctx, r.models.VerifierModel(), verifySystemPrompt, verifyUserPrompt(query, value, rawText, evidence), 1024, "verify")
	if err != nil {
		return model.VerificationResult{}, err
	}
	return parseVerification(text, len(evidence))
}

func (r *anthropicReasoner) generate(ctx context.Context, modelName, system, user string, maxTokens int64, phase string) (string, error) {
	temperature := 0.0
	resp, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       modelName,
			MaxTokens:   maxTokens,
			System:      anthropic.BuildCachedSystemBlocks(system),
			Messages:    []anthropic.Message{{Role: "user", Content: user}},
			Temperature: &temperature,
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: anthropic %s", phase)
	}
	resp.Usage.LogCost(modelName, phase)

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", eris.Errorf("pipeline: anthropic %s returned no text content", phase)
	}
	return sb.String(), nil
}

// geminiReasoner adapts the Gemini client. JSON mode is forced inside the
// client; there is no provider-side prompt cache to prime.
type geminiReasoner struct {
	client  gemini.Client
	models  ReasonerModels
	breaker *resilience.CircuitBreaker
}

// NewGeminiReasoner wraps a Gemini client as a Reasoner.
func NewGeminiReasoner(client gemini.Client, models ReasonerModels) Reasoner {
	return &geminiReasoner{client: client, models: models, breaker: newReasonerBreaker()}
}

func (r *geminiReasoner) ExtractionModel(profile model.QualityProfile) string {
	return r.models.ForProfile(profile)
}

func (r *geminiReasoner) Prime(ctx context.Context) {}

func (r *geminiReasoner) Extract(ctx context.Context, query model.FieldQuery, profile model.QualityProfile, evidence []model.EvidenceItem) (model.ExtractionResult, error) {
	text, err := r.generate(ctx, r.models.ForProfile(profile), extractSystemPrompt, extractUserPrompt(query, profile, evidence), "extract")
	if err != nil {
		return model.ExtractionResult{}, err
	}
	return parseExtraction(text, len(evidence))
}

func (r *geminiReasoner) Verify(ctx context.Context, query model.FieldQuery, value, rawText string, evidence []model.EvidenceItem) (model.VerificationResult, error) {
	text, err := r.generate(ctx, r.models.VerifierModel(), verifySystemPrompt, verifyUserPrompt(query, value, rawText, evidence), "verify")
	if err != nil {
		return model.VerificationResult{}, err
	}
	return parseVerification(text, len(evidence))
}

func (r *geminiReasoner) generate(ctx context.Context, modelName, system, user, phase string) (string, error) {
	resp, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*gemini.GenerateResponse, error) {
		return r.client.GenerateJSON(ctx, gemini.GenerateRequest{
			Model:  modelName,
			System: system,
			User:   user,
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: gemini %s", phase)
	}
	zap.L().Info("pipeline: gemini usage",
		zap.String("model", modelName),
		zap.String("phase", phase),
		zap.Int32("input_tokens", resp.Usage.InputTokens),
		zap.Int32("output_tokens", resp.Usage.OutputTokens),
	)
	return resp.Text, nil
}
