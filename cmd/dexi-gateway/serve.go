// ABOUTME: serve command: builds every gateway component from config and runs the server
// ABOUTME: Tracing, prompt watching and the audit store are released when the server stops

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/2389/dexi-gateway/internal/agent"
	"github.com/2389/dexi-gateway/internal/audit"
	"github.com/2389/dexi-gateway/internal/auth"
	"github.com/2389/dexi-gateway/internal/builtins"
	"github.com/2389/dexi-gateway/internal/config"
	"github.com/2389/dexi-gateway/internal/engine"
	"github.com/2389/dexi-gateway/internal/gateway"
	"github.com/2389/dexi-gateway/internal/metrics"
	"github.com/2389/dexi-gateway/internal/mode"
	"github.com/2389/dexi-gateway/internal/policy"
	"github.com/2389/dexi-gateway/internal/prompts"
	"github.com/2389/dexi-gateway/internal/store"
	"github.com/2389/dexi-gateway/internal/stream"
	"github.com/2389/dexi-gateway/internal/telemetry"
	"github.com/2389/dexi-gateway/internal/tools"
)

// auditKeep bounds the in-memory history of the log audit sink.
const auditKeep = 1000

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	printStartup(configPath, cfg)

	logger.Info("starting dexi-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"engine", cfg.EngineBackend(),
		"audit", cfg.Audit.Driver,
	)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      version,
		SamplingRate: cfg.Telemetry.SamplingRate,
	}, component(logger, "telemetry"))
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	m := metrics.New()

	reg, err := buildTools(cfg, m, logger)
	if err != nil {
		return err
	}

	templates, err := prompts.NewStore(cfg.Prompts.Dir, component(logger, "prompts"))
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}
	defer templates.Close()
	if cfg.Prompts.HotReload {
		if err := templates.Watch(ctx); err != nil {
			logger.Warn("prompt hot reload unavailable", "dir", cfg.Prompts.Dir, "error", err)
		}
	}

	eng := buildEngine(cfg, reg, logger)
	catalog := agent.NewCatalog(eng, templates, component(logger, "agent"))

	authCfg, err := buildAuthConfig(cfg.Auth)
	if err != nil {
		return err
	}
	authn := auth.NewAuthenticator(ctx, authCfg, component(logger, "auth"))

	sink, lister, db, err := openAudit(ctx, cfg.Audit, component(logger, "audit"))
	if err != nil {
		return err
	}

	orch := stream.NewOrchestrator(
		mode.NewClassifier(cfg.Mode.Keywords, cfg.Mode.ToolHints),
		audit.NewWriter(sink, component(logger, "audit")),
		stream.Config{
			Heartbeat: cfg.Stream.HeartbeatInterval,
			Targets: stream.Targets{
				Fast:     cfg.Perf.Fast,
				Balanced: cfg.Perf.Balanced,
				Deep:     cfg.Perf.Deep,
			},
		},
		component(logger, "stream"),
		stream.WithObserver(m),
	)

	opts := gateway.Options{
		Config:       cfg,
		Auth:         authn,
		Agents:       catalog,
		Tools:        reg,
		Orchestrator: orch,
		Audit:        lister,
		Metrics:      m,
		Logger:       component(logger, "gateway"),
	}
	if db != nil {
		opts.Store = db
	}
	gw, err := gateway.New(opts)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func printStartup(configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Engine:    %s\n", cfg.EngineBackend())
	green.Print("    ▶ ")
	fmt.Printf("Audit:     %s\n", cfg.Audit.Driver)
	if cfg.Auth.DevMode {
		yellow.Println("    ! dev auth enabled: x-dev-* headers are trusted")
	}
	fmt.Println()
}

func buildTools(cfg *config.Config, rec tools.Recorder, logger *slog.Logger) (*tools.Registry, error) {
	deps, err := builtins.LoadDeps(cfg.Tools.DocsDir, cfg.Tools.UIRoutesPath, component(logger, "builtins"))
	if err != nil {
		return nil, fmt.Errorf("loading tool data: %w", err)
	}
	reg := tools.NewRegistry(component(logger, "tools"), tools.WithRecorder(rec))
	if err := builtins.Register(reg, deps); err != nil {
		return nil, err
	}
	reg.Seal()
	return reg, nil
}

func buildEngine(cfg *config.Config, reg *tools.Registry, logger *slog.Logger) engine.Engine {
	if cfg.EngineBackend() == "openai" {
		return engine.NewOpenAI(engine.OpenAIConfig{
			APIKey:   cfg.Engine.APIKey,
			BaseURL:  cfg.Engine.BaseURL,
			Model:    cfg.Engine.Model,
			MaxTurns: cfg.Engine.MaxTurns,
		}, reg, component(logger, "engine"))
	}
	logger.Warn("no model configured, using stub engine")
	return engine.Stub{}
}

// openAudit returns the audit sink, its lister and, for database drivers, the
// store the gateway pings and closes.
func openAudit(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (audit.Sink, audit.Lister, *store.AuditStore, error) {
	switch cfg.Driver {
	case "log":
		sink := audit.NewLogSink(logger, auditKeep)
		return sink, sink, nil, nil
	case "postgres":
		db, err := store.OpenPostgres(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening audit store: %w", err)
		}
		return db, db, db, nil
	default:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, nil, fmt.Errorf("creating audit directory: %w", err)
			}
		}
		db, err := store.OpenSQLite(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening audit store: %w", err)
		}
		return db, db, db, nil
	}
}

func buildAuthConfig(cfg config.AuthConfig) (auth.Config, error) {
	issuers := cfg.Issuers
	if cfg.IssuersPath != "" {
		loaded, err := auth.LoadIssuersFile(cfg.IssuersPath)
		if err != nil {
			return auth.Config{}, fmt.Errorf("loading issuers: %w", err)
		}
		issuers = append(issuers, loaded...)
	}

	var role policy.Role
	if cfg.DevRole != "" {
		r, ok := policy.ParseRole(cfg.DevRole)
		if !ok {
			return auth.Config{}, errors.New("auth.dev_role must be one of viewer, analyst, manager, admin")
		}
		role = r
	}

	return auth.Config{
		DevMode:            cfg.DevMode,
		DevUser:            cfg.DevUser,
		DevRole:            role,
		DefaultApplication: cfg.DefaultApplication,
		Secret:             cfg.JWTSecret,
		Issuer:             cfg.Issuer,
		Audience:           cfg.Audience,
		JWKSURI:            cfg.JWKSURI,
		Issuers:            issuers,
	}, nil
}

func component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
