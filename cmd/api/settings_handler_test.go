package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettingsRouter(h *SettingsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/settings/ollama", h.GetOllamaSettings)
	r.PUT("/api/settings/ollama", h.UpdateOllamaSettings)
	r.POST("/api/settings/ollama/test", h.TestOllamaConnection)
	return r
}

func TestUpdateOllamaSettingsIsSeenByGetters(t *testing.T) {
	h := NewSettingsHandler("http://localhost:11434", "llama3")
	r := newSettingsRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/settings/ollama",
		strings.NewReader(`{"ollama_base_url":"http://gpu-box:11434/","ollama_model":"mistral"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "http://gpu-box:11434", h.OllamaBaseURL())
	assert.Equal(t, "mistral", h.OllamaModel())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/settings/ollama", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOllamaConnectionCheck(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer ollama.Close()

	r := newSettingsRouter(NewSettingsHandler(ollama.URL, "llama3"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/settings/ollama/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":true`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/settings/ollama/test",
		strings.NewReader(`{"ollama_base_url":"`+ollama.URL+`/nope"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
