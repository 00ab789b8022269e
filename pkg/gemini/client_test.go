package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_EmptyKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is empty")
}

func TestGenerateJSON_EmptyModel(t *testing.T) {
	t.Parallel()

	c := &sdkClient{}
	_, err := c.GenerateJSON(context.Background(), GenerateRequest{User: "extract the title"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is empty")
}

func TestFirstText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, firstText(nil))
	assert.Empty(t, firstText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"value":"Master Services Agreement"}`),
			}}},
		},
	}
	assert.Equal(t, `{"value":"Master Services Agreement"}`, firstText(resp))
}

func TestFirstText_SkipsNonTextParts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{
				&genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text("after the blob"),
			}}},
		},
	}
	assert.Equal(t, "after the blob", firstText(resp))
}
