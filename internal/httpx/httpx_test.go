package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ultrahd-dev/helpdesk/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Title string `json:"title" binding:"required,min=5"`
	Email string `json:"email" binding:"omitempty,email"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext(method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestBindJSON_FieldDetails(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"title":"abc","email":"nope"}`)

	var req sampleRequest
	err := BindJSON(c, &req)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	fields, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "email")
}

func TestBindJSON_Malformed(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"title":`)

	var req sampleRequest
	err := BindJSON(c, &req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestError_Envelope(t *testing.T) {
	c, w := newContext(http.MethodGet, "")

	Error(c, apperr.Forbidden("Доступ запрещен"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, c.IsAborted())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Доступ запрещен", body["error"])
	assert.NotContains(t, body, "details")
}

func TestParamUUID(t *testing.T) {
	c, _ := newContext(http.MethodGet, "")
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	_, err := ParamUUID(c, "id")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
