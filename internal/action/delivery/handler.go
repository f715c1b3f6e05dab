package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"advisor-backend/internal/action/domain"
	"advisor-backend/internal/action/usecase"
	connDelivery "advisor-backend/internal/connection/delivery"

	"github.com/gin-gonic/gin"
)

// ActionHandler exposes the dispatcher as a named tool call
type ActionHandler struct {
	dispatcher usecase.Dispatcher
}

func NewActionHandler(dispatcher usecase.Dispatcher) *ActionHandler {
	return &ActionHandler{dispatcher: dispatcher}
}

// CallTool runs one named tool for the signed-in owner with the JSON body as
// its arguments
// POST /api/tools/call?tool=
func (h *ActionHandler) CallTool(c *gin.Context) {
	tool := strings.TrimSpace(c.Query("tool"))
	owner := connDelivery.Owner(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	action, err := usecase.Decode(tool, body)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTool) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown tool"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.dispatcher.Dispatch(c.Request.Context(), owner, action)
	if !result.OK {
		c.JSON(http.StatusBadGateway, gin.H{"error": result.Message, "result": result})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Tool '%s' executed", tool),
		"result":  result,
	})
}
