package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/mpratt/lifelogd/internal/config"
	"github.com/mpratt/lifelogd/internal/ingest"
	"github.com/mpratt/lifelogd/internal/resolver"
	"github.com/mpratt/lifelogd/internal/search"
	"github.com/mpratt/lifelogd/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "lifelogd"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	store    *storage.Store
	pipeline *ingest.Pipeline
	searcher *search.Searcher
	resolver *resolver.Resolver
	cfg      *config.Config
	log      zerolog.Logger
}

// NewServer creates a new MCP server instance over an already-open store.
func NewServer(ctx context.Context, store *storage.Store, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	pipeline, err := ingest.New(ctx, store, cfg.GapThreshold, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	searcher, err := search.New(store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		store:    store,
		pipeline: pipeline,
		searcher: searcher,
		resolver: resolver.New(store, cfg.ContextWindow),
		cfg:      cfg,
		log:      log,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestLifelogsTool(), s.handleIngestLifelogs)
	s.mcp.AddTool(searchTranscriptsTool(), s.handleSearchTranscripts)
	s.mcp.AddTool(getContextTool(), s.handleGetContext)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
