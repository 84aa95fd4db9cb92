// Package server exposes the knowledge graph over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	graphmem "github.com/soundprediction/graphmem"
	"github.com/soundprediction/graphmem/pkg/centrality"
	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/relevance"
	"github.com/soundprediction/graphmem/pkg/server/handlers"
	"github.com/soundprediction/graphmem/pkg/telemetry"
	"github.com/soundprediction/graphmem/pkg/worker"
)

// Dependencies carries everything the HTTP layer serves. Optional
// fields may be nil; their routes degrade or disappear.
type Dependencies struct {
	Memory     graphmem.GraphMem
	Graph      driver.GraphDriver
	Worker     *worker.Worker
	Centrality *centrality.Engine
	Storage    *centrality.AtomicStorage
	Relevance  *relevance.Tracker
	Scorer     relevance.Scorer
	Telemetry  *telemetry.Recorder
	Logger     *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	config *config.ServerConfig
	deps   Dependencies
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// New creates a server. Call Setup before Start.
func New(cfg *config.ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: cfg, deps: deps, logger: logger}
}

// Setup builds the router and registers all routes.
func (s *Server) Setup() {
	gin.SetMode(s.config.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	health := handlers.NewHealthHandler(s.deps.Graph, s.deps.Worker)
	engine.GET("/healthcheck", health.HealthCheck)
	engine.GET("/ready", health.ReadinessCheck)
	engine.GET("/metrics/worker", health.WorkerMetrics)

	ingest := handlers.NewIngestHandler(s.deps.Memory, s.deps.Graph, s.deps.Worker, s.deps.Telemetry)
	engine.POST("/ingest/messages", ingest.AddMessages)
	engine.POST("/ingest/entity", ingest.AddEntityNode)
	engine.DELETE("/ingest/clear", ingest.ClearData)

	retrieve := handlers.NewRetrieveHandler(s.deps.Memory)
	engine.POST("/search", retrieve.Search)
	engine.POST("/get-memory", retrieve.GetMemory)
	engine.GET("/entity-edge/:uuid", retrieve.GetEntityEdge)
	engine.GET("/episodes/:group_id", retrieve.GetEpisodes)

	if s.deps.Centrality != nil {
		central := handlers.NewCentralityHandler(s.deps.Centrality, s.deps.Storage, s.deps.Graph)
		engine.POST("/centrality/calculate", central.Calculate)
		engine.GET("/centrality/scores/:group_id", central.GetScores)
	}

	if s.deps.Relevance != nil {
		rel := handlers.NewRelevanceHandler(s.deps.Relevance, s.deps.Scorer)
		engine.POST("/relevance/feedback", rel.Feedback)
		engine.GET("/relevance/:memory_id", rel.GetRecord)
	}

	s.engine = engine
	s.http = &http.Server{
		Addr:              s.config.Address(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
