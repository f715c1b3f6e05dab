package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"advisor-backend/internal/chat/usecase"
	connDelivery "advisor-backend/internal/connection/delivery"

	"github.com/gin-gonic/gin"
)

// ChatHandler handles assistant chat requests
type ChatHandler struct {
	chatUsecase usecase.ChatUsecase
}

func NewChatHandler(chatUsecase usecase.ChatUsecase) *ChatHandler {
	return &ChatHandler{chatUsecase: chatUsecase}
}

type chatRequest struct {
	Query string `json:"query"`
}

// Chat answers for the signed-in owner
// POST /api/chat {query}; ?prompt= is accepted too
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Query == "" {
		req.Query = c.Query("prompt")
	}

	reply, err := h.chatUsecase.Ask(c.Request.Context(), connDelivery.Owner(c), req.Query)
	if err != nil {
		if errors.Is(err, usecase.ErrEmptyQuery) || errors.Is(err, usecase.ErrMissingOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply})
}

// History GET /api/chat/history?limit=
func (h *ChatHandler) History(c *gin.Context) {
	owner := connDelivery.Owner(c)
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	history, err := h.chatUsecase.History(owner, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
