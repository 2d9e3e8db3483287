// Package http exposes the ledger pipeline as a JSON API: the write surface
// for clients, accounts and transactions, and the read surface for the
// aggregated customer truth view.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bankos/internal/cache"
	"bankos/internal/core"
	"bankos/internal/log"
	"bankos/internal/services"
)

// StoreReader is the read surface the handlers need from the repository.
type StoreReader interface {
	services.TruthReader
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]core.Transaction, error)
	Ping(ctx context.Context) error
}

// Config tunes the server beyond its dependencies.
type Config struct {
	Addr           string
	TruthCacheSize int
	TruthCacheTTL  time.Duration
}

type Server struct {
	http.Server

	transactions *services.TransactionService
	truth        *services.TruthService
	store        StoreReader
	logger       *log.Logger

	rateLimiter *rateLimiter

	// Customer truth reads are the hot path; cache entries expire on TTL
	// and are invalidated on local writes.
	truthCache   *cache.LRU[core.CustomerTruth]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, transactions *services.TransactionService, truth *services.TruthService, store StoreReader, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		transactions: transactions,
		truth:        truth,
		store:        store,
		logger:       logger.WithComponent(log.ComponentHTTP),
		rateLimiter:  newRateLimiter(),
		truthCache:   cache.NewLRU[core.CustomerTruth](cfg.TruthCacheSize, cfg.TruthCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.truthCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("POST /clients", s.withMiddleware(s.handleCreateClient))
	mux.HandleFunc("GET /clients/{id}", s.withMiddleware(s.handleGetClient))
	mux.HandleFunc("POST /accounts", s.withMiddleware(s.handleOpenAccount))
	mux.HandleFunc("GET /accounts/{id}", s.withMiddleware(s.handleGetAccount))
	mux.HandleFunc("GET /accounts", s.withMiddleware(s.handleListAccounts))
	mux.HandleFunc("POST /transactions", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("GET /customer-truth/{id}", s.withMiddleware(s.handleCustomerTruth))
	mux.HandleFunc("GET /decision-history", s.withMiddleware(s.handleDecisionHistory))
	mux.HandleFunc("POST /decisions/outcome", s.withMiddleware(s.handlePublishOutcome))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	return s
}

// Shutdown stops the cache and rate limiter cleanup goroutines before
// draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withMiddleware adds request logging, security headers and write rate
// limiting around a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "rate limit exceeded",
				log.FieldRequestID, requestID,
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{
		"truth_cache_entries": s.truthCache.Size(),
	}
	status, httpStatus := "ready", http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}
