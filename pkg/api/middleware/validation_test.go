package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	. "quorumgate/pkg/api/middleware"
	"quorumgate/pkg/models"
)

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBodySizeLimit_RejectsLargeBody(t *testing.T) {
	router := gin.New()
	router.Use(BodySizeLimitMiddleware(8))
	router.POST("/ready", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, httptest.NewRequest(http.MethodPost, "/ready", strings.NewReader("SECONDARY_READY")))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestRequestID_GeneratedAndPropagated(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestIDKey))
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get("X-Request-ID")
	if generated == "" || w.Body.String() != generated {
		t.Errorf("expected generated request id in header and context, got %q / %q", generated, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	if got := serve(router, req).Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("expected caller's request id to be kept, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeadersMiddleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected frame options header")
	}
}

func TestValidRoleParam(t *testing.T) {
	router := gin.New()
	router.POST("/quorums/:role/drain", ValidRoleParam(), func(c *gin.Context) {
		c.String(http.StatusOK, string(c.MustGet("role").(models.Role)))
	})

	w := serve(router, httptest.NewRequest(http.MethodPost, "/quorums/secondary/drain", nil))
	if w.Code != http.StatusOK || w.Body.String() != string(models.RoleSecondary) {
		t.Errorf("expected SECONDARY, got %d %q", w.Code, w.Body.String())
	}

	w = serve(router, httptest.NewRequest(http.MethodPost, "/quorums/tertiary/drain", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown role, got %d", w.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	router := gin.New()
	router.GET("/admin", APIKeyAuth("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/open", APIKeyAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(router, httptest.NewRequest(http.MethodGet, "/admin", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(APIKeyHeaderKey, "s3cret")
	if w := serve(router, req); w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}

	if w := serve(router, httptest.NewRequest(http.MethodGet, "/open", nil)); w.Code != http.StatusOK {
		t.Errorf("expected 200 when auth disabled, got %d", w.Code)
	}
}
