package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func brotliRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli(BrotliMinLength(64), SkipPaths("/metrics")))

	large := strings.Repeat("leaderboard ", 100)
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, large) })
	return r
}

func get(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	r := brotliRouter()
	w := get(r, "/large", map[string]string{"Accept-Encoding": "gzip, br;q=1.0"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))

	body, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("leaderboard ", 100), string(body))
}

func TestBrotliPassthrough(t *testing.T) {
	r := brotliRouter()
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		body    string
	}{
		{"small body", "/small", map[string]string{"Accept-Encoding": "br"}, "ok"},
		{"client without br", "/large", map[string]string{"Accept-Encoding": "gzip"}, ""},
		{"skipped path", "/metrics", map[string]string{"Accept-Encoding": "br"}, ""},
		{"event stream", "/large", map[string]string{"Accept-Encoding": "br", "Accept": "text/event-stream"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path, tt.headers)
			require.Equal(t, http.StatusOK, w.Code)
			require.Empty(t, w.Header().Get("Content-Encoding"))
			if tt.body != "" {
				require.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
