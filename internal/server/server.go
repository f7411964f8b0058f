// Package server is a development backend playing both sides of the upload
// protocol: it issues single-use storage credentials, accepts direct and
// fallback uploads, serves stored objects and compiles project targets.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/menta2k/webar-studio/internal/storage"
	"github.com/menta2k/webar-studio/pkg/compiler"
)

// Options configures a Server
type Options struct {
	Addr          string
	PublicURL     string // base URL written into credentials and object URLs
	CredentialTTL time.Duration
	MaxUploadSize int64
	Compiler      compiler.Compiler
	Logger        *slog.Logger
}

// Server wraps the HTTP server and its persistence
type Server struct {
	addr          string
	store         *storage.Store
	objects       *storage.ObjectStore
	compiler      compiler.Compiler
	credentialTTL time.Duration
	maxUploadSize int64
	client        *http.Client
	log           *slog.Logger
	server        *http.Server

	mu        sync.RWMutex
	publicURL string
}

// New creates a Server backed by store and objects
func New(store *storage.Store, objects *storage.ObjectStore, opts Options) *Server {
	if opts.CredentialTTL <= 0 {
		opts.CredentialTTL = 15 * time.Minute
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 200 << 20
	}
	if opts.Compiler == nil {
		opts.Compiler = compiler.NewNative()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		addr:          opts.Addr,
		store:         store,
		objects:       objects,
		compiler:      opts.Compiler,
		credentialTTL: opts.CredentialTTL,
		maxUploadSize: opts.MaxUploadSize,
		client:        &http.Client{Timeout: 2 * time.Minute},
		log:           opts.Logger,
		publicURL:     strings.TrimSuffix(opts.PublicURL, "/"),
	}
}

// SetPublicURL changes the advertised base URL
func (s *Server) SetPublicURL(url string) {
	s.mu.Lock()
	s.publicURL = strings.TrimSuffix(url, "/")
	s.mu.Unlock()
}

func (s *Server) baseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicURL
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/uploads/credentials", s.handleIssueCredential).Methods("POST")
	r.HandleFunc("/storage/upload/{token}", s.handleStorageUpload).Methods("POST", "PUT")
	r.HandleFunc("/api/upload", s.handleFallbackUpload).Methods("POST")
	r.HandleFunc("/files/{key:.+}", s.handleGetObject).Methods("GET", "HEAD")
	r.HandleFunc("/api/projects/{projectID}/compile", s.handleCompile).Methods("POST")
	r.HandleFunc("/api/projects/{projectID}/compilations", s.handleListCompilations).Methods("GET")
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr, "public_url", s.baseURL(), "compiler", s.compiler.Name())
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
