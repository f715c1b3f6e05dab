package delivery

import (
	"errors"
	"net/http"
	"strings"

	"advisor-backend/internal/connection/domain"
	"advisor-backend/internal/connection/usecase"

	"github.com/gin-gonic/gin"
)

// ConnectionHandler handles OAuth connection and device registration requests
type ConnectionHandler struct {
	connectionUsecase usecase.ConnectionUsecase
}

func NewConnectionHandler(connectionUsecase usecase.ConnectionUsecase) *ConnectionHandler {
	return &ConnectionHandler{connectionUsecase: connectionUsecase}
}

// GoogleAuthURL redirects to the Google consent screen. ?email= is a hint the
// consenting account has to match.
// GET /api/auth/google/url?email=
func (h *ConnectionHandler) GoogleAuthURL(c *gin.Context) {
	h.redirectToConsent(c, domain.ProviderGoogle, strings.TrimSpace(c.Query("email")))
}

// HubSpotAuthURL redirects to the HubSpot consent screen for the signed-in owner
// GET /api/hubspot/auth-url
func (h *ConnectionHandler) HubSpotAuthURL(c *gin.Context) {
	h.redirectToConsent(c, domain.ProviderHubSpot, Owner(c))
}

func (h *ConnectionHandler) redirectToConsent(c *gin.Context, provider domain.Provider, owner string) {
	url, err := h.connectionUsecase.AuthURL(provider, owner)
	if err != nil {
		if errors.Is(err, usecase.ErrMissingOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if c.Query("redirect") == "false" {
		c.JSON(http.StatusOK, gin.H{"url": url})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback completes the Google OAuth flow
// GET /api/auth/google/callback?code=&state=
func (h *ConnectionHandler) GoogleCallback(c *gin.Context) {
	h.callback(c, domain.ProviderGoogle)
}

// HubSpotCallback completes the HubSpot OAuth flow
// GET /api/hubspot/callback?code=&state=
func (h *ConnectionHandler) HubSpotCallback(c *gin.Context) {
	h.callback(c, domain.ProviderHubSpot)
}

func (h *ConnectionHandler) callback(c *gin.Context, provider domain.Provider) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code"})
		return
	}

	cred, err := h.connectionUsecase.HandleCallback(c.Request.Context(), provider, code, c.Query("state"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidState):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, usecase.ErrOwnerMismatch):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	resp := gin.H{
		"message":  "connected",
		"provider": cred.Provider,
		"email":    cred.OwnerEmail,
	}
	// Google identifies the owner, so its callback signs the owner in
	if provider == domain.ProviderGoogle {
		session, err := h.connectionUsecase.IssueSession(cred.OwnerEmail)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["token"] = session
	}
	c.JSON(http.StatusOK, resp)
}

type RegisterDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// RegisterFCMToken stores a device of the signed-in owner for push alerts
// POST /api/fcm/register
func (h *ConnectionHandler) RegisterFCMToken(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.connectionUsecase.RegisterDevice(Owner(c), req.Token, req.DeviceInfo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "FCM token registered"})
}

// UnregisterFCMToken removes one of the signed-in owner's devices
// DELETE /api/fcm/:token
func (h *ConnectionHandler) UnregisterFCMToken(c *gin.Context) {
	if err := h.connectionUsecase.UnregisterDevice(Owner(c), c.Param("token")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "FCM token removed"})
}
