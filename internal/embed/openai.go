package embed

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-legal/evidence-cli/pkg/openai"
)

// OpenAIProvider adapts the OpenAI embeddings client to Provider.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a Provider backed by the OpenAI embeddings API.
func NewOpenAI(client openai.Client, model string) *OpenAIProvider {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{client: client, model: model}
}

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// EmbedBatch embeds texts in one API call. The response carries an index per
// vector; vectors are reordered by it rather than trusting response order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingsRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, eris.Errorf("embed: vector index %d out of range for %d inputs", d.Index, len(texts))
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, eris.Errorf("embed: no vector returned for input %d", i)
		}
	}
	return vecs, nil
}
