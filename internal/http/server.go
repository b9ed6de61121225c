// Package http serves the JSON API: asset and event management plus the
// cost decomposition, TCO and time-series read models.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"beni/internal/cache"
	applog "beni/internal/log"
	"beni/internal/middleware/ratelimit"
	"beni/internal/middleware/security"
	"beni/internal/services"
)

type Server struct {
	http.Server
	svc         *services.AssetService
	rateLimiter *ratelimit.Limiter
	headers     *security.HeadersMiddleware

	// Computed read models are cached per asset; every write to an asset
	// bumps its revision so stale entries can never be served.
	tcoCache    *cache.LRU[tcoResponse]
	seriesCache *cache.LRU[seriesResponse]
	revMu       sync.Mutex
	assetRev    map[int64]int64

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc *services.AssetService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:              svc,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		tcoCache:         cache.NewLRU[tcoResponse](100, 5*time.Minute),
		seriesCache:      cache.NewLRU[seriesResponse](200, 5*time.Minute),
		assetRev:         make(map[int64]int64),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/beni", s.wrap(s.handleCreateAsset))
	mux.HandleFunc("GET /api/beni", s.wrap(s.handleListAssets))
	mux.HandleFunc("GET /api/beni/{id}", s.wrap(s.handleGetAsset))
	mux.HandleFunc("DELETE /api/beni/{id}", s.wrap(s.handleDeleteAsset))

	mux.HandleFunc("POST /api/beni/{id}/eventi", s.wrap(s.handleCreateEvent))
	mux.HandleFunc("GET /api/beni/{id}/eventi", s.wrap(s.handleListEvents))
	mux.HandleFunc("PUT /api/eventi/{id}", s.wrap(s.handleUpdateEvent))
	mux.HandleFunc("DELETE /api/eventi/{id}", s.wrap(s.handleDeleteEvent))

	mux.HandleFunc("GET /api/beni/{id}/scomposizione", s.wrap(s.handleDecomposition))
	mux.HandleFunc("GET /api/beni/{id}/tco", s.wrap(s.handleTCO))
	mux.HandleFunc("GET /api/beni/{id}/costi-tempo", s.wrap(s.handleCostSeries))

	return s
}

type requestIDKey struct{}

// wrap adds request logging, rate limiting on writes and security headers.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	secured := s.headers.Middleware(next)
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.Allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		secured.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// revision returns the current cache revision for an asset.
func (s *Server) revision(assetID int64) int64 {
	s.revMu.Lock()
	defer s.revMu.Unlock()
	return s.assetRev[assetID]
}

// bumpRevision invalidates all cached read models of an asset.
func (s *Server) bumpRevision(assetID int64) {
	s.revMu.Lock()
	defer s.revMu.Unlock()
	s.assetRev[assetID]++
}

func (s *Server) cacheKey(assetID int64, parts ...string) string {
	key := strconv.FormatInt(assetID, 10) + "@" + strconv.FormatInt(s.revision(assetID), 10)
	for _, p := range parts {
		key += "|" + p
	}
	return key
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tcoCleaned := s.tcoCache.CleanExpired()
			seriesCleaned := s.seriesCache.CleanExpired()
			if tcoCleaned > 0 || seriesCleaned > 0 {
				slog.Debug("Cache cleanup completed",
					"tco_entries_removed", tcoCleaned,
					"series_entries_removed", seriesCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
