package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes a Store over HTTP
type Server struct {
	store  Store
	secret []byte
	mux    *http.ServeMux
}

// NewServer creates a new Server with default mux. secret verifies the
// auth service's HMAC tokens.
func NewServer(store Store, secret string) *Server {
	return NewServerWithMux(store, secret, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(store Store, secret string, mux *http.ServeMux) *Server {
	s := &Server{
		store:  store,
		secret: []byte(secret),
		mux:    mux,
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/transactions/store", s.requireUser(s.handleStoreTransactions))
	s.mux.HandleFunc("GET /api/transactions", s.requireUser(s.handleListTransactions))

	s.mux.HandleFunc("POST /api/inventory/store", s.requireUser(s.handleStoreInventory))
	s.mux.HandleFunc("GET /api/inventory", s.requireUser(s.handleListInventory))
}

// Start starts the HTTP server and stops it when ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
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

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
