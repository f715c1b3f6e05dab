package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubService struct {
	name     string
	reply    string
	replyErr error
	vec      []float32
	calls    int
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply, s.replyErr
}

func (s *stubService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, nil
}

func TestFallbackUsesSecondaryOnFailure(t *testing.T) {
	primary := &stubService{name: "p", replyErr: errors.New("429 RESOURCE_EXHAUSTED")}
	secondary := &stubService{name: "s", reply: "from ollama"}
	f := NewFallbackService(primary, secondary, zap.NewNop())

	reply, err := f.Complete(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "from ollama", reply)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackSkipsSecondaryOnSuccess(t *testing.T) {
	primary := &stubService{name: "p", reply: "from gemini"}
	secondary := &stubService{name: "s"}
	f := NewFallbackService(primary, secondary, zap.NewNop())

	reply, err := f.Complete(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "from gemini", reply)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackReportsBothFailures(t *testing.T) {
	primary := &stubService{name: "p", replyErr: errors.New("dial tcp: refused")}
	secondary := &stubService{name: "s", replyErr: errors.New("ollama down")}
	f := NewFallbackService(primary, secondary, zap.NewNop())

	_, err := f.Complete(context.Background(), "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama down")
}

func TestFallbackEmbedsWithPrimaryOnly(t *testing.T) {
	primary := &stubService{name: "p", vec: []float32{1, 2}}
	secondary := &stubService{name: "s", vec: []float32{9, 9}}
	f := NewFallbackService(primary, secondary, zap.NewNop())

	vec, err := f.Embed(context.Background(), "text")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isQuotaError(errors.New("Error 429: Too Many Requests")))
	assert.False(t, isQuotaError(errors.New("bad request")))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:11434: connection refused")))
	assert.False(t, isConnectionError(nil))
}

func TestOllamaCompleteAndEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case "/api/generate":
			assert.Equal(t, "llama3", body["model"])
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "  hello  ", "done": true})
		case "/api/embeddings":
			assert.Equal(t, "nomic-embed-text", body["model"])
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float64{0.5, -1}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllamaService(srv.URL, "", "")

	reply, err := o.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	vec, err := o.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1}, vec)
}

func TestOllamaNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaService(srv.URL, "missing", "").Complete(context.Background(), "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNewServiceWithoutGeminiKeyUsesOllama(t *testing.T) {
	svc, err := NewService(context.Background(), DynamicConfig{
		Provider:         ProviderAuto,
		GetOllamaBaseURL: func() string { return "http://ollama:11434" },
		GetOllamaModel:   func() string { return "llama3" },
	}, zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t, "ollama:llama3", svc.Name())
}

func TestNewServiceGeminiRequiresKey(t *testing.T) {
	_, err := NewService(context.Background(), DynamicConfig{
		Provider:         ProviderGemini,
		GetOllamaBaseURL: func() string { return "" },
		GetOllamaModel:   func() string { return "" },
	}, zap.NewNop())

	assert.Error(t, err)
}
