package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

const (
	defaultBrotliQuality   = 5
	defaultBrotliMinLength = 1024
)

type brotliOptions struct {
	quality   int
	minLength int
	skip      []string
}

// BrotliOption customizes the Brotli middleware.
type BrotliOption func(*brotliOptions)

// BrotliQuality sets the encoder level (0-11).
func BrotliQuality(q int) BrotliOption {
	return func(o *brotliOptions) {
		if q >= brotli.BestSpeed && q <= brotli.BestCompression {
			o.quality = q
		}
	}
}

// BrotliMinLength sets the body size below which responses go out as-is.
func BrotliMinLength(n int) BrotliOption {
	return func(o *brotliOptions) {
		if n > 0 {
			o.minLength = n
		}
	}
}

// SkipPaths excludes path prefixes. /metrics negotiates its own gzip.
func SkipPaths(prefixes ...string) BrotliOption {
	return func(o *brotliOptions) {
		o.skip = append(o.skip, prefixes...)
	}
}

type writerMode int

const (
	modePending writerMode = iota
	modeCompress
	modePassthrough
)

// brotliWriter buffers until minLength bytes are seen, then commits to
// either compressed or plain output for the rest of the response.
type brotliWriter struct {
	gin.ResponseWriter
	opts *brotliOptions
	enc  *brotli.Writer
	buf  []byte
	mode writerMode
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	switch bw.mode {
	case modeCompress:
		return bw.enc.Write(data)
	case modePassthrough:
		return bw.ResponseWriter.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.opts.minLength {
		return len(data), nil
	}

	if bw.Header().Get("Content-Encoding") != "" {
		bw.mode = modePassthrough
	} else {
		bw.Header().Set("Content-Encoding", "br")
		bw.Header().Del("Content-Length")
		bw.enc = brotli.NewWriterLevel(bw.ResponseWriter, bw.opts.quality)
		bw.mode = modeCompress
	}
	if err := bw.drain(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush sends what is buffered. A response flushed before reaching
// minLength stays uncompressed.
func (bw *brotliWriter) Flush() {
	switch bw.mode {
	case modePending:
		bw.mode = modePassthrough
		_ = bw.drain()
	case modeCompress:
		_ = bw.enc.Flush()
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) drain() error {
	if len(bw.buf) == 0 {
		return nil
	}
	var err error
	if bw.mode == modeCompress {
		_, err = bw.enc.Write(bw.buf)
	} else {
		_, err = bw.ResponseWriter.Write(bw.buf)
	}
	bw.buf = bw.buf[:0]
	return err
}

func (bw *brotliWriter) finish() error {
	switch bw.mode {
	case modeCompress:
		return bw.enc.Close()
	case modePending:
		bw.mode = modePassthrough
	}
	return bw.drain()
}

// Brotli compresses REST responses for clients that accept "br".
// Streams (SSE, WebSocket) are never wrapped.
func Brotli(options ...BrotliOption) gin.HandlerFunc {
	opts := &brotliOptions{
		quality:   defaultBrotliQuality,
		minLength: defaultBrotliMinLength,
	}
	for _, o := range options {
		o(opts)
	}

	return func(c *gin.Context) {
		if isStream(c) || opts.skipped(c.Request.URL.Path) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{ResponseWriter: c.Writer, opts: opts}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

func (o *brotliOptions) skipped(path string) bool {
	for _, prefix := range o.skip {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// isStream reports SSE and WebSocket requests; both need unbuffered writes.
func isStream(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
