package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"boardpilot/internal/adapter/console"
	"boardpilot/internal/adapter/gateway"
	"boardpilot/internal/adapter/mcp"
	"boardpilot/internal/adapter/store"
	"boardpilot/internal/adapter/tool"
	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
	"boardpilot/internal/infra/logger"
	"boardpilot/internal/infra/middleware"
	"boardpilot/internal/infra/tracer"
	"boardpilot/internal/usecase"
)

var version = "0.3.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "version", "--version":
			fmt.Println("boardpilot " + version)
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "daemon":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
			os.Exit(1)
		}
	case "console":
		if err := runConsole(); err != nil {
			fmt.Fprintf(os.Stderr, "console: %v\n", err)
			os.Exit(1)
		}
	case "mcp":
		if err := runMCP(); err != nil {
			fmt.Fprintf(os.Stderr, "mcp: %v\n", err)
			os.Exit(1)
		}
	case "setup-config":
		if err := runSetupConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "setup-config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'boardpilot --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`boardpilot - natural-language canvas command engine

USAGE:
    boardpilot [COMMAND] [FLAGS]

COMMANDS:
    daemon        Run the engine with the HTTP gateway (default)
    console       Interactive local console against a canvas
    mcp           Serve the engine over MCP stdio
    setup-config  Encrypt API keys and tokens in the config file
    version       Print version

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./boardpilot.yaml)
    --canvas ID      Canvas to target (console/mcp; default: "default")
    --user ID        Acting user id (console; default: "console")

CONFIGURATION:
    Config file: ./boardpilot.yaml
    Environment: BOARDPILOT_* variables override config
    Secrets:     set BOARDPILOT_CONFIG_KEY to decrypt "enc:" values

EXAMPLES:
    boardpilot                          # Run gateway with boardpilot.yaml
    boardpilot console --canvas demo    # Talk to a canvas locally
    boardpilot setup-config             # Encrypt api keys in place`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("BOARDPILOT_CONFIG"); p != "" {
		return p
	}
	return "boardpilot.yaml"
}

func stringFlag(name, fallback string) string {
	for i, arg := range os.Args {
		if arg == "--"+name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--"+name+"=") {
			return strings.TrimPrefix(arg, "--"+name+"=")
		}
	}
	return fallback
}

// components holds everything main wires together before choosing a front end.
type components struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *store.SQLiteStore
	engine  *usecase.Engine
	jobs    *usecase.JobManager
	metrics *usecase.Metrics
	limiter *usecase.RateLimitService
	sweeper *usecase.Maintenance

	cleanup []func()
}

func (c *components) close() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
}

// initComponents builds the full engine stack: config, logger, tracer, store,
// providers, and the engine with its guardrail services.
func initComponents(ctx context.Context) (*components, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	c := &components{cfg: cfg}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	c.log = log
	c.cleanup = append(c.cleanup, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	c.cleanup = append(c.cleanup, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
	})

	if dir := filepath.Dir(cfg.Store.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			c.close()
			return nil, fmt.Errorf("store dir: %w", err)
		}
	}
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("store: %w", err)
	}
	c.store = db
	c.cleanup = append(c.cleanup, func() { _ = db.Close() })

	models, err := initLLM(cfg, log)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	c.jobs = usecase.NewJobManager(db, log)
	c.limiter = usecase.NewRateLimitService(cfg.RateLimit.MaxCommands, cfg.RateLimit.Window)
	c.metrics = usecase.NewMetrics()

	newRunner := func(req domain.CommandRequest, objects []domain.Object, connectors []domain.Connector) domain.ToolRunner {
		return tool.NewDispatcher(db, tool.NewArena(req, objects, connectors), log)
	}

	c.engine = usecase.NewEngine(usecase.EngineDeps{
		Canvas:    db,
		Jobs:      c.jobs,
		Models:    models,
		Limiter:   c.limiter,
		Metrics:   c.metrics,
		NewRunner: newRunner,
		Logger:    log,
		Options: usecase.EngineOptions{
			MaxIterations:       cfg.Engine.MaxIterations,
			MaxToolCalls:        cfg.Engine.MaxToolCalls,
			MaxCreatedObjects:   cfg.Engine.MaxCreatedObjects,
			MaxDetailObjects:    cfg.Engine.MaxDetailObjects,
			LoopCallTimeout:     cfg.Engine.LoopCallTimeout,
			PlannerTimeout:      cfg.Engine.PlannerTimeout,
			ContentTimeout:      cfg.Engine.ContentTimeout,
			ExtractorTimeout:    cfg.Engine.ExtractorTimeout,
			ExtractorEnabled:    cfg.Engine.ExtractorEnabled,
			PlannerTemperature:  cfg.Engine.PlannerTemperature,
			ExtractorConfidence: cfg.Engine.ExtractorConfidence,
		},
	})

	if cfg.Maintenance.Enabled {
		c.sweeper = usecase.NewMaintenance(c.jobs, c.limiter, usecase.MaintenanceOptions{
			Schedule:    cfg.Maintenance.SweepSchedule,
			StaleJobAge: cfg.Maintenance.StaleJobAge,
		}, log)
		if err := c.sweeper.Start(); err != nil {
			c.close()
			return nil, fmt.Errorf("maintenance: %w", err)
		}
		c.cleanup = append(c.cleanup, c.sweeper.Stop)
	}

	return c, nil
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := initComponents(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	hub := gateway.NewProgressHub(c.log)
	c.jobs.SetNotifier(hub)

	var auth gateway.Authenticator
	if c.cfg.Gateway.Auth.Type == "static" {
		entries := make([]gateway.TokenEntry, 0, len(c.cfg.Gateway.Auth.Tokens))
		for _, t := range c.cfg.Gateway.Auth.Tokens {
			entries = append(entries, gateway.TokenEntry{Token: t.Token, Name: t.Name})
		}
		auth = gateway.NewStaticTokenAuth(entries)
	}

	srv := gateway.NewServer(gateway.ServerDeps{
		Engine:  c.engine,
		Canvas:  c.store,
		Metrics: c.metrics,
		Hub:     hub,
		Auth:    auth,
		Logger:  c.log,
		Version: version,
		RateLimit: middleware.RateLimitConfig{
			RPS:   c.cfg.Gateway.RateLimitRPS,
			Burst: c.cfg.Gateway.RateLimitBurst,
		},
	}, c.cfg.Gateway.Addr)

	if c.cfg.MCP.Enabled {
		go func() {
			mcpSrv := mcp.New(c.engine, c.store, version, c.log)
			if err := mcpSrv.Serve(); err != nil {
				c.log.Error("mcp server error", "error", err)
			}
		}()
	}

	c.log.Info("boardpilot starting",
		"version", version,
		"addr", c.cfg.Gateway.Addr,
		"store", c.cfg.Store.Path,
		"default_provider", c.cfg.LLM.DefaultProvider,
		"extractor", c.cfg.Engine.ExtractorEnabled,
		"mcp", c.cfg.MCP.Enabled,
	)
	return srv.Start(ctx)
}

func runConsole() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := initComponents(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	runner := console.NewRunner(console.Deps{
		Engine:   c.engine,
		Canvas:   c.store,
		CanvasID: stringFlag("canvas", "default"),
		UserID:   stringFlag("user", "console"),
		Version:  version,
		Logger:   c.log,
	})
	c.jobs.SetNotifier(runner)
	return runner.Start(ctx)
}

func runMCP() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := initComponents(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	return mcp.New(c.engine, c.store, version, c.log).Serve()
}
