package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/saveenergy/playertester/internal/bridge"
	"github.com/saveenergy/playertester/internal/live"
	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/internal/results"
	"github.com/saveenergy/playertester/pkg/types"
	"github.com/saveenergy/playertester/web"
)

type Router struct {
	handler        *Handler
	bridge         *bridge.Hub
	live           *live.Hub
	resultsHandler *results.Handler
	metrics        http.Handler
	allowedOrigins []string
	webFS          http.FileSystem
}

func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

func (r *Router) SetBridge(hub *bridge.Hub) {
	r.bridge = hub
}

func (r *Router) SetLiveHub(hub *live.Hub) {
	r.live = hub
}

func (r *Router) SetResultsHandler(h *results.Handler) {
	r.resultsHandler = h
}

// SetMetricsHandler mounts h at /metrics.
func (r *Router) SetMetricsHandler(h http.Handler) {
	r.metrics = h
}

// SetWebRoot overrides the embedded player page with a directory on disk.
// If path is empty, the embedded assets are used.
func (r *Router) SetWebRoot(path string) {
	if path != "" {
		r.webFS = http.Dir(path)
	}
}

func (r *Router) SetAllowedOrigins(origins []string) {
	r.allowedOrigins = origins
}

func (r *Router) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	v1 := func(method, path string, handler http.HandlerFunc) {
		mux.HandleFunc(method+" /api/v1"+path, handler)
	}

	v1("GET", "/version", r.handler.GetVersion)
	v1("GET", "/status", r.handler.GetStatus)

	if r.resultsHandler != nil {
		v1("GET", "/runs", r.resultsHandler.List)
		v1("GET", "/runs/{id}", r.resultsHandler.Get)
		v1("GET", "/runs/{id}/samples", r.resultsHandler.Samples)
	}
	if r.live != nil {
		v1("GET", "/runs/{id}/live", r.live.HandleRun)
	}
	if r.bridge != nil {
		mux.HandleFunc("GET /bridge", r.bridge.HandleBridge)
	}
	if r.metrics != nil {
		mux.Handle("GET /metrics", r.metrics)
	}

	mux.HandleFunc("GET /health", r.HealthCheck)

	mux.Handle("/", staticCacheMiddleware(newStaticAllowlistHandler(r.resolveWebFS())))

	// Wrap with middleware (outermost runs first)
	var handler http.Handler = mux
	handler = r.CORSMiddleware(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = r.LoggingMiddleware(handler)

	return handler
}

func newStaticAllowlistHandler(webFS http.FileSystem) http.Handler {
	allowed := map[string]bool{
		"index.html": true,
		"bridge.js":  true,
		"style.css":  true,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if name == "." || name == "/" {
			name = "index.html"
		}
		if strings.Contains(name, "..") || !allowed[name] {
			http.NotFound(w, r)
			return
		}
		f, err := webFS.Open(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, stat.ModTime(), f)
	})
}

func (r *Router) HealthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		logging.Warn("health: write response", logging.F("error", err))
	}
}

func (r *Router) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		originAllowed := origin != "" && r.isAllowedOrigin(origin)
		if originAllowed {
			allowOrigin := origin
			if r.isAllowAllOrigins() {
				allowOrigin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			if allowOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if req.Method == http.MethodOptions {
			if origin != "" && !originAllowed {
				respondJSON(w, map[string]string{"error": "origin not allowed"}, http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// isAllowedOrigin matches cross-origin API callers. Unlike the WebSocket
// upgraders, an empty list allows no cross-origin access.
func (r *Router) isAllowedOrigin(origin string) bool {
	if len(r.allowedOrigins) == 0 {
		return false
	}
	return types.AllowedOrigin(origin, "", r.allowedOrigins)
}

func (r *Router) isAllowAllOrigins() bool {
	for _, allowed := range r.allowedOrigins {
		if allowed == "*" {
			return true
		}
	}
	return false
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *Router) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path

		// Long-lived WebSocket routes log their own lifecycle.
		skipLog := strings.HasSuffix(path, "/live")

		if strings.HasPrefix(path, "/api/") && !skipLog {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, req)

			duration := time.Since(start)
			logging.Debug("HTTP request",
				logging.F("method", req.Method),
				logging.F("path", path),
				logging.F("status", rw.statusCode),
				logging.F("duration_ms", float64(duration.Microseconds())/1000),
				logging.F("remote", req.RemoteAddr),
			)
		} else {
			next.ServeHTTP(w, req)
		}
	})
}

// SecurityHeadersMiddleware allows the player script from jsDelivr and media
// from any http(s) origin, since manifests are arbitrary.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; "+
				"style-src 'self' 'unsafe-inline'; "+
				"script-src 'self' https://cdn.jsdelivr.net; "+
				"media-src 'self' blob: https: http:; "+
				"img-src 'self' data:; "+
				"connect-src 'self' https: http: ws: wss:")
		next.ServeHTTP(w, r)
	})
}

func staticCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if r.URL.Path == "/" || strings.HasSuffix(r.URL.Path, ".html") {
				w.Header().Set("Cache-Control", "no-store")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// resolveWebFS returns the web file system to use for static assets.
// A disk override set via SetWebRoot takes precedence over the embedded page.
func (r *Router) resolveWebFS() http.FileSystem {
	if r.webFS != nil {
		return r.webFS
	}
	return http.FS(web.Assets)
}
