package session

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxFormBytes bounds one multipart file selection
const DefaultMaxFormBytes = 64 << 20

// Server exposes upload sessions over HTTP
type Server struct {
	manager      *Manager
	basicAuth    BasicAuth
	mux          *http.ServeMux
	maxFormBytes int64
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(manager *Manager, basicAuth BasicAuth) *Server {
	return NewServerWithMux(manager, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(manager *Manager, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		manager:      manager,
		basicAuth:    basicAuth,
		mux:          mux,
		maxFormBytes: DefaultMaxFormBytes,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="LedgerSense"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// withSession resolves {id} before calling next
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.manager.Get(r.PathValue("id"))
		if err != nil {
			jsonError(w, "Session not found", http.StatusNotFound)
			return
		}
		next(w, r, sess)
	})
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleCreateSession))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.handleDeleteSession))

	s.mux.HandleFunc("POST /api/sessions/{id}/files", s.withSession(s.handleAddFiles))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/files", s.withSession(s.handleDismissAll))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/files/{index}", s.withSession(s.handleDismiss))
	s.mux.HandleFunc("POST /api/sessions/{id}/files/{index}/resubmit", s.withSession(s.handleResubmit))
	s.mux.HandleFunc("POST /api/sessions/{id}/dispatch", s.withSession(s.handleDispatch))

	s.mux.HandleFunc("PATCH /api/sessions/{id}/rows/{row}", s.withSession(s.handleEditCell))
	s.mux.HandleFunc("POST /api/sessions/{id}/rows", s.withSession(s.handleAppendRow))
	s.mux.HandleFunc("POST /api/sessions/{id}/commit", s.withSession(s.handleCommit))
	s.mux.HandleFunc("GET /api/sessions/{id}/export.xlsx", s.withSession(s.handleExport))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server and stops it when ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
