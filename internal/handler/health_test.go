package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := New(trace.NewNoopTracerProvider().Tracer("test"), &stubAnalyzer{}, &stubMarket{})
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if body != "{\"status\":\"healthy\"}\n" && body != "{\"status\":\"healthy\"}" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestRoot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := New(trace.NewNoopTracerProvider().Tracer("test"), &stubAnalyzer{}, &stubMarket{})
	r.GET("/", h.Root)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || w.Body.String() != `{"message":"API is running","status":"ok"}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}
