package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	connDelivery "advisor-backend/internal/connection/delivery"
	connUsecase "advisor-backend/internal/connection/usecase"
	"advisor-backend/internal/ingest/usecase"

	"github.com/gin-gonic/gin"
)

// IngestHandler handles ingestion and semantic search requests
type IngestHandler struct {
	ingestUsecase usecase.IngestUsecase
}

func NewIngestHandler(ingestUsecase usecase.IngestUsecase) *IngestHandler {
	return &IngestHandler{ingestUsecase: ingestUsecase}
}

// request scopes ingestion to the session owner. ?token= replaces the stored
// connection and must belong to that owner.
func request(c *gin.Context) usecase.Request {
	max, _ := strconv.ParseInt(c.Query("max"), 10, 64)
	return usecase.Request{
		Owner:       connDelivery.Owner(c),
		AccessToken: c.Query("token"),
		Max:         max,
	}
}

func writeIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrMissingCredentials), errors.Is(err, usecase.ErrMissingOwner):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrOwnerMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, connUsecase.ErrNotConnected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// IngestGmail GET /api/gmail/ingest?token=&max=
func (h *IngestHandler) IngestGmail(c *gin.Context) {
	res, err := h.ingestUsecase.IngestGmail(c.Request.Context(), request(c))
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Ingested %d threads", res.Inserted),
		"result":  res,
	})
}

// IngestHubSpot GET /api/hubspot/ingest?token=
func (h *IngestHandler) IngestHubSpot(c *gin.Context) {
	res, err := h.ingestUsecase.IngestHubSpot(c.Request.Context(), request(c))
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Ingested %d contacts", res.Inserted),
		"result":  res,
	})
}

// IngestCalendar GET /api/calendar/ingest?token=&max=
func (h *IngestHandler) IngestCalendar(c *gin.Context) {
	res, err := h.ingestUsecase.IngestCalendar(c.Request.Context(), request(c))
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Ingested %d events", res.Inserted),
		"result":  res,
	})
}

// IngestAll POST /api/ingest/all
func (h *IngestHandler) IngestAll(c *gin.Context) {
	owner := connDelivery.Owner(c)
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": h.ingestUsecase.IngestAll(c.Request.Context(), owner)})
}

// GetThread GET /api/gmail/thread/:id?token=
func (h *IngestHandler) GetThread(c *gin.Context) {
	detail, err := h.ingestUsecase.GetThread(c.Request.Context(), request(c), c.Param("id"))
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func writeSearchError(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrMissingOwner) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func searchParams(c *gin.Context) (owner, query string, k int, ok bool) {
	query = strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return "", "", 0, false
	}
	k, _ = strconv.Atoi(c.Query("limit"))
	return connDelivery.Owner(c), query, k, true
}

// SearchThreads GET /api/gmail/search?query=
func (h *IngestHandler) SearchThreads(c *gin.Context) {
	owner, query, k, ok := searchParams(c)
	if !ok {
		return
	}
	results, err := h.ingestUsecase.SearchThreads(c.Request.Context(), owner, query, k)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// SearchContacts GET /api/search?query=
func (h *IngestHandler) SearchContacts(c *gin.Context) {
	owner, query, k, ok := searchParams(c)
	if !ok {
		return
	}
	results, err := h.ingestUsecase.SearchContacts(c.Request.Context(), owner, query, k)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// SearchEvents GET /api/calendar/search?query=
func (h *IngestHandler) SearchEvents(c *gin.Context) {
	owner, query, k, ok := searchParams(c)
	if !ok {
		return
	}
	results, err := h.ingestUsecase.SearchEvents(c.Request.Context(), owner, query, k)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
