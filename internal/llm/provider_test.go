package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProviderGenerateContent(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hel"},{"text":"lo"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL+"/", "key-123", "gemini-test", time.Second)
	resp, err := p.GenerateContent(context.Background(), &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}},
		GenerationConfig: &GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   storySchema(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, "/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "key-123", gotKey)

	cfg := gotBody["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", cfg["responseMimeType"])
	schema := cfg["responseSchema"].(map[string]interface{})
	assert.Equal(t, "OBJECT", schema["type"])
	_, hasModel := gotBody["model"]
	assert.False(t, hasModel)
}

func TestGeminiProviderExplicitModel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"AAA"}}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "k", "default", time.Second)
	resp, err := p.GenerateContent(context.Background(), &GenerateRequest{Model: "image-model"})
	require.NoError(t, err)
	assert.Equal(t, "/models/image-model:generateContent", gotPath)
	require.Len(t, resp.Parts(), 1)
	assert.Equal(t, "image/png", resp.Parts()[0].InlineData.MimeType)
}

func TestGeminiProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "k", "m", time.Second)
	_, err := p.GenerateContent(context.Background(), &GenerateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.False(t, p.IsAvailable(context.Background()))
}

func TestGeminiProviderModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash"}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "k", "m", time.Second)
	models, err := p.GetModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gemini-2.5-flash", models[0].Name)
	assert.True(t, p.IsAvailable(context.Background()))

	p.SetModel("")
	assert.Equal(t, "m", p.GetCurrentModel())
	p.SetModel("gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash", p.GetCurrentModel())
}
