package delivery

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	connDelivery "advisor-backend/internal/connection/delivery"
	"advisor-backend/internal/task/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubTasks struct {
	created string
	owner   string
}

func (s *stubTasks) CreateTask(owner, instruction string) (*domain.Task, error) {
	s.created = instruction
	s.owner = owner
	return &domain.Task{ID: "t1", OwnerEmail: owner, Instruction: instruction, Status: domain.TaskStatusPending}, nil
}

func (s *stubTasks) ListTasks(owner string) ([]*domain.Task, error) {
	return []*domain.Task{}, nil
}

func (s *stubTasks) MarkDone(owner, id string) (*domain.Task, error) {
	if id != "t1" || owner != "o@x.com" {
		return nil, domain.ErrTaskNotFound
	}
	return &domain.Task{ID: id, Status: domain.TaskStatusDone}, nil
}

func newRouter(s *stubTasks) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTaskHandler(s)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(connDelivery.OwnerKey, "o@x.com") })
	r.POST("/api/tasks", h.CreateTask)
	r.GET("/api/tasks", h.GetTasks)
	r.POST("/api/tasks/:id/done", h.MarkDone)
	return r
}

func TestTaskRoutes(t *testing.T) {
	s := &stubTasks{}
	r := newRouter(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks?email=victim@x.com", strings.NewReader(`{"instruction":"call Jane"}`)))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "call Jane", s.created)
	assert.Equal(t, "o@x.com", s.owner, "owner comes from the session, not the query")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks/t1/done", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"done"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks/nope/done", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
