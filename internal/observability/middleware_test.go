package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/mycelia/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLoggerSkipsMetricsScrapes(t *testing.T) {
	testlog.Start(t)
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf), "listener.test"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET(metricsPath, func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{metricsPath, "/health", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"route":"/health"`) || !strings.Contains(lines[0], `"node":"listener.test"`) {
		t.Fatalf("unexpected health line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], `"status":404`) {
		t.Fatalf("unexpected not-found line: %s", lines[1])
	}
	if strings.Contains(buf.String(), metricsPath) {
		t.Fatalf("metrics scrape was logged: %s", buf.String())
	}
}
