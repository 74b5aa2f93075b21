package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnexium/memory-substrate/internal/llm"
)

func TestOpenAIProviderCallJSONSendsSystemAndUserMessages(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := p.CallJSON(context.Background(), "system instructions", "user text")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOpenAIProviderEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIProviderPropagatesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.CallJSON(context.Background(), "s", "u")
	require.Error(t, err)
}

func TestOllamaProviderCallJSONRequestsJSONFormat(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"a":1}`, "done": true})
	}))
	defer srv.Close()

	p := llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: srv.URL})
	out, err := p.CallJSON(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	assert.Equal(t, "json", captured["format"])
}

func TestOllamaProviderEmbedReturnsFirstVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{1, 2, 3}}})
	}))
	defer srv.Close()

	p := llm.NewOllamaProvider(llm.OllamaConfig{BaseURL: srv.URL})
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, vec)
}

func TestAnthropicProviderCallJSONSendsSystemField(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"text": "hello back"}},
		})
	}))
	defer srv.Close()

	p := llm.NewAnthropicProvider(llm.AnthropicConfig{APIKey: "k", Model: "claude-test", BaseURL: srv.URL})
	out, err := p.CallJSON(context.Background(), "sys prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
	assert.Equal(t, "sys prompt", captured["system"])
}
