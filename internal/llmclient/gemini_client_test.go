package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/praxis-sh/praxis/api/schemas"
	"github.com/praxis-sh/praxis/internal/config"
)

func testLLMConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Provider:    ProviderGemini,
		Model:       "gemini-2.0-flash",
		APIKey:      "test-key",
		Endpoint:    endpoint,
		APITimeout:  5 * time.Second,
		Temperature: 0.4,
	}
}

const geminiOKBody = `{
	"candidates": [{"content": {"parts": [{"text": "the answer"}], "role": "model"}, "finishReason": "STOP"}],
	"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 7}
}`

func TestGenerateResponse_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(geminiOKBody))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(testLLMConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	got, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "be brief",
		UserPrompt:   "what is it",
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", got.Text)
	assert.Equal(t, ProviderGemini, got.Provider)
	assert.Equal(t, 12, got.TokensInput)
	assert.Equal(t, 7, got.TokensOutput)
	assert.GreaterOrEqual(t, got.LatencyMS, int64(0))
}

func TestGenerateResponse_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(geminiOKBody))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(testLLMConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	got, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", got.Text)
	assert.Equal(t, int32(2), calls.Load(), "429 must be retried")
}

func TestGenerateResponse_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewGeminiClient(testLLMConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "q"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.APIKey = ""
	_, err := NewGeminiClient(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewClient_Factory(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "unknown"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	client, err := NewClient(testLLMConfig("http://localhost"), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, client)
}
