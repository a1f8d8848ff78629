package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/fipsim/internal/metrics"
	"github.com/nvandessel/fipsim/internal/ratelimit"
	"github.com/nvandessel/fipsim/internal/store"
)

// Server wraps the MCP SDK server and provides fipsim tools.
type Server struct {
	server   *sdk.Server
	store    store.TraceStore
	limiters *ratelimit.ToolLimiters
	timeout  time.Duration
	audit    *AuditLogger
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "fipsim")
	Version string // Server version

	// StoreDir holds traces.db and audit.jsonl. Empty means ~/.fipsim.
	StoreDir string

	// InMemory keeps traces in memory and disables the audit log.
	InMemory bool

	RateLimit   float64       // sustained tool calls per second, per tool
	Burst       int           // tool calls allowed at once, per tool
	ToolTimeout time.Duration // zero means no timeout

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger
}

// toolNames lists every registered tool.
var toolNames = []string{"fipsim_reverse", "fipsim_frame", "fipsim_runs"}

// NewServer creates a new MCP server with fipsim tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		traceStore store.TraceStore
		auditDir   string
	)
	if cfg.InMemory {
		traceStore = store.NewInMemoryTraceStore()
	} else {
		dir, err := store.ResolveDir(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve store directory: %w", err)
		}
		sqliteStore, err := store.NewSQLiteTraceStore(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace store: %w", err)
		}
		traceStore = sqliteStore
		auditDir = dir
	}

	rateLimit, burst := cfg.RateLimit, cfg.Burst
	if rateLimit <= 0 {
		rateLimit = 10
	}
	if burst < 1 {
		burst = 5
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:   mcpServer,
		store:    traceStore,
		limiters: ratelimit.NewToolLimiters(rateLimit, burst, toolNames...),
		timeout:  cfg.ToolTimeout,
		audit:    NewAuditLogger(auditDir, logger),
		metrics:  metrics.NewCollector(),
		logger:   logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
// The caller still owns Close.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger.Info("shutting down mcp server")
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close closes the trace store and audit log.
func (s *Server) Close() error {
	auditErr := s.audit.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}

// toolContext bounds a tool call by the configured timeout.
func (s *Server) toolContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
