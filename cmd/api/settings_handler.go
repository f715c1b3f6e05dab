package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RuntimeConfig holds runtime-configurable settings
type RuntimeConfig struct {
	OllamaBaseURL string `json:"ollama_base_url"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

// SettingsHandler serves the Ollama settings the AI service reads on every call
type SettingsHandler struct {
	mu     sync.RWMutex
	config RuntimeConfig
	client *http.Client
}

func NewSettingsHandler(ollamaBaseURL, ollamaModel string) *SettingsHandler {
	return &SettingsHandler{
		config: RuntimeConfig{
			OllamaBaseURL: ollamaBaseURL,
			OllamaModel:   ollamaModel,
		},
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// OllamaBaseURL returns the current runtime Ollama base URL
func (h *SettingsHandler) OllamaBaseURL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config.OllamaBaseURL
}

// OllamaModel returns the current runtime Ollama model
func (h *SettingsHandler) OllamaModel() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config.OllamaModel
}

// UpdateOllamaSettingsRequest represents the request body for updating Ollama settings
type UpdateOllamaSettingsRequest struct {
	OllamaBaseURL string `json:"ollama_base_url" binding:"required"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

// GetOllamaSettings returns current Ollama configuration
// GET /api/settings/ollama
func (h *SettingsHandler) GetOllamaSettings(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c.JSON(http.StatusOK, h.config)
}

// UpdateOllamaSettings updates Ollama configuration at runtime
// PUT /api/settings/ollama
func (h *SettingsHandler) UpdateOllamaSettings(c *gin.Context) {
	var req UpdateOllamaSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.config.OllamaBaseURL = strings.TrimRight(req.OllamaBaseURL, "/")
	if req.OllamaModel != "" {
		h.config.OllamaModel = req.OllamaModel
	}
	current := h.config
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message":         "Ollama settings updated successfully",
		"ollama_base_url": current.OllamaBaseURL,
		"ollama_model":    current.OllamaModel,
	})
}

// TestOllamaConnection checks that the Ollama server answers /api/tags
// POST /api/settings/ollama/test
func (h *SettingsHandler) TestOllamaConnection(c *gin.Context) {
	var req struct {
		OllamaBaseURL string `json:"ollama_base_url"`
	}
	// An empty body tests the current settings
	_ = c.ShouldBindJSON(&req)
	if req.OllamaBaseURL == "" {
		req.OllamaBaseURL = h.OllamaBaseURL()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(req.OllamaBaseURL, "/")+"/api/tags", nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"connected": false, "error": err.Error()})
		return
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected":   false,
			"status_code": resp.StatusCode,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":       true,
		"ollama_base_url": req.OllamaBaseURL,
	})
}
