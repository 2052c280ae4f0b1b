// Package server exposes the verifier over HTTP (gin) and reports model
// readiness over the gRPC health protocol.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/property-verifier/internal/export"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

// Processor is satisfied by *pipeline.Processor.
type Processor interface {
	Process(ctx context.Context, doc pipeline.Document) (pipeline.Report, error)
	Ready() pipeline.Readiness
}

type Config struct {
	AllowOrigins []string
}

// Server holds the state for the REST API server.
type Server struct {
	proc     Processor
	store    *storage.Store
	repo     repository.AnalysisRepository // nil when history is disabled
	exporter *export.Service
	logger   *slog.Logger
	router   *gin.Engine
}

// NewServer wires the routes. repo may be nil.
func NewServer(cfg Config, proc Processor, store *storage.Store, repo repository.AnalysisRepository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{headerRequestID, "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	s := &Server{
		proc:   proc,
		store:  store,
		repo:   repo,
		logger: logger,
		router: r,
	}
	if repo != nil {
		s.exporter = export.NewService(repo, logger)
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/", s.root)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/document-types", s.documentTypes)
	s.router.POST("/upload-document", s.uploadDocument)

	history := s.router.Group("/analyses")
	history.GET("", s.listAnalyses)
	history.GET("/export.xlsx", s.exportAnalyses)
	history.GET("/:id", s.getAnalysis)
}

// Run serves HTTP on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http serving", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
