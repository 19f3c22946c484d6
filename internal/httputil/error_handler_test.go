package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/platform/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestShouldShowError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("conversation id is required"), true},
		{errors.New("server selection error: mongo timeout"), false},
		{errors.New("scan failed: conversation c1: connection reset"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldShowError(tt.err), "%v", tt.err)
	}
}

func TestInternalServerErrorHidesDetails(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		InternalServerError(c, errors.New("mongo: no reachable servers"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "mongo")
	assert.Contains(t, w.Body.String(), `"code":5001`)
}

func TestBadRequest(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		BadRequest(c, ErrorCodeInvalidMode, "invalid sanitize mode")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid sanitize mode","code":2002,"success":false,"request_id":""}`, w.Body.String())
}

func TestSafeError_ShowsHarmlessMessage(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		SafeError(c, http.StatusInternalServerError, ErrorCodeScanFailed, errors.New("conversation is locked"), "掃描對話失敗")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"conversation is locked","code":5002,"success":false,"request_id":"req-7"}`, w.Body.String())
}
