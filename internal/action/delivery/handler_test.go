package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"advisor-backend/internal/action/domain"
	connDelivery "advisor-backend/internal/connection/delivery"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	got    domain.Action
	owner  string
	result domain.Result
}

func (s *stubDispatcher) Dispatch(ctx context.Context, owner string, action domain.Action) domain.Result {
	s.got = action
	s.owner = owner
	return s.result
}

func newRouter(d *stubDispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(connDelivery.OwnerKey, "o@x.com") })
	r.POST("/api/tools/call", NewActionHandler(d).CallTool)
	return r
}

func call(r *gin.Engine, query, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tools/call?"+query, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestCallToolDispatchesDecodedAction(t *testing.T) {
	d := &stubDispatcher{result: domain.Succeeded("hs-1", "Contact created")}
	r := newRouter(d)

	w := call(r, "tool=create_contact&email=victim@x.com", `{"name":"Jane Doe","email":"jane@x.com"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.CreateContact{Name: "Jane Doe", Email: "jane@x.com"}, d.got)
	assert.Equal(t, "o@x.com", d.owner)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Tool 'create_contact' executed", body["message"])
}

func TestCallToolUnknownTool(t *testing.T) {
	d := &stubDispatcher{}
	w := call(newRouter(d), "tool=launch_rocket", `{}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown tool")
	assert.Nil(t, d.got)
}

func TestCallToolArgumentMismatch(t *testing.T) {
	d := &stubDispatcher{}
	w := call(newRouter(d), "tool=send_email", `{"recipient":"a@x.com","subject":"Hi","cc":"b@x.com"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cc")
	assert.Nil(t, d.got)
}

func TestCallToolFailedResult(t *testing.T) {
	d := &stubDispatcher{result: domain.Failed("send_email: quota exceeded")}
	w := call(newRouter(d), "tool=send_email", `{"recipient":"a@x.com","subject":"Hi"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "quota exceeded")
}
