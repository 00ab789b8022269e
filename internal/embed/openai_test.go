package embed

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meridian-legal/evidence-cli/pkg/openai"
)

type mockOpenAIClient struct {
	mock.Mock
}

func (m *mockOpenAIClient) CreateEmbeddings(ctx context.Context, req openai.EmbeddingsRequest) (*openai.EmbeddingsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.EmbeddingsResponse), args.Error(1)
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	client := &mockOpenAIClient{}
	client.On("CreateEmbeddings", mock.Anything, openai.EmbeddingsRequest{
		Model: "text-embedding-3-large",
		Input: []string{"first", "second"},
	}).Return(&openai.EmbeddingsResponse{
		// Out of order on purpose: index is authoritative.
		Data: []openai.Embedding{
			{Index: 1, Embedding: []float64{0.3, 0.4}},
			{Index: 0, Embedding: []float64{0.1, 0.2}},
		},
	}, nil)

	p := NewOpenAI(client, "text-embedding-3-large")
	got, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, got)
	client.AssertExpectations(t)
}

func TestOpenAIProvider_DefaultModel(t *testing.T) {
	p := NewOpenAI(&mockOpenAIClient{}, "")
	assert.Equal(t, "text-embedding-3-small", p.Model())
}

func TestOpenAIProvider_MissingVector(t *testing.T) {
	client := &mockOpenAIClient{}
	client.On("CreateEmbeddings", mock.Anything, mock.Anything).
		Return(&openai.EmbeddingsResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: []float64{0.1}}},
		}, nil)

	p := NewOpenAI(client, "")
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector returned for input 1")
}

func TestOpenAIProvider_IndexOutOfRange(t *testing.T) {
	client := &mockOpenAIClient{}
	client.On("CreateEmbeddings", mock.Anything, mock.Anything).
		Return(&openai.EmbeddingsResponse{
			Data: []openai.Embedding{{Index: 5, Embedding: []float64{0.1}}},
		}, nil)

	p := NewOpenAI(client, "")
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestOpenAIProvider_ServiceError(t *testing.T) {
	client := &mockOpenAIClient{}
	client.On("CreateEmbeddings", mock.Anything, mock.Anything).
		Return(nil, eris.New("openai: unexpected status 401"))

	p := NewOpenAI(client, "")
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	client := &mockOpenAIClient{}

	p := NewOpenAI(client, "")
	got, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	client.AssertNotCalled(t, "CreateEmbeddings", mock.Anything, mock.Anything)
}
