// Package mcp provides an MCP (Model Context Protocol) server for neuronsim.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/logging"
	"github.com/MontagueM/NeuronImperialProject/internal/ratelimit"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

// Server wraps the MCP SDK server and exposes simulations as tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	root         string
	sim          *config.SimConfig
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
	decisions    *logging.DecisionLogger

	// simMu serializes simulations; each one may use every core.
	simMu sync.Mutex
}

// Config holds server configuration.
type Config struct {
	Name    string            // Server name (e.g., "neuronsim")
	Version string            // Server version
	Root    string            // Project root directory; runs are stored under Root/.neuronsim
	Sim     *config.SimConfig // Base simulation config; tool arguments override it. Nil loads defaults.
}

// NewServer creates a new MCP server with neuronsim tools.
func NewServer(cfg *Config) (*Server, error) {
	sim := cfg.Sim
	if sim == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		sim = loaded
	}
	if err := sim.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runStore, err := store.NewSQLiteRunStore(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		root:         cfg.Root,
		sim:          sim,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(store.LocalPath(cfg.Root)),
		logger:       logging.Discard(),
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// SetLogger sets the structured logger and decision logger for observability.
func (s *Server) SetLogger(logger *slog.Logger, decisions *logging.DecisionLogger) {
	if logger == nil {
		logger = logging.Discard()
	}
	s.logger = logger
	s.decisions = decisions
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects, the context is cancelled, or
// the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server starting", "root", s.root)
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.logger.Info("mcp server stopped", "error", err)

	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	s.auditLogger.Close()
	return s.store.Close()
}
