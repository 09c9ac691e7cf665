package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cerberus-gate/cerberus/internal/adapter/inbound/http"
	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/file"
	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/memory"
	redisadapter "github.com/cerberus-gate/cerberus/internal/adapter/outbound/redis"
	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/sqlite"
	"github.com/cerberus-gate/cerberus/internal/adapter/outbound/upstream"
	"github.com/cerberus-gate/cerberus/internal/config"
	"github.com/cerberus-gate/cerberus/internal/domain/audit"
	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/internal/domain/decision"
	"github.com/cerberus-gate/cerberus/internal/domain/guardrail"
	"github.com/cerberus-gate/cerberus/internal/domain/policy"
	"github.com/cerberus-gate/cerberus/internal/domain/ratelimit"
	"github.com/cerberus-gate/cerberus/internal/domain/tenant"
	"github.com/cerberus-gate/cerberus/internal/service"
)

var (
	seedFile string
	devMode  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the Cerberus governance gateway.

The proxy endpoint listens under /governance-plane/api/v1/proxy;
/health and /metrics share the listener.

Examples:
  # Start with config file settings
  cerberus serve

  # Development mode with seeded tenants and policies
  cerberus serve --dev --seed seed.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&seedFile, "seed", "", "YAML seed file loaded into the store at startup")
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "development mode (debug logging, in-memory defaults)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires the stores, the decision engine, and the HTTP listener, then
// serves until the context is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Persistence backend.
	var (
		tenants     tenant.Store
		credentials credential.Store
		policies    policy.Store
		audits      audit.Store
	)
	switch cfg.Store.Backend {
	case "sqlite":
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer store.Close()
		tenants = store
		credentials = store.Credentials()
		policies = store.Policies()
		audits = store
		logger.Info("store backend: sqlite", "path", cfg.Store.SQLitePath)
	default:
		tenantStore := memory.NewTenantStore()
		tenants = tenantStore
		credentials = memory.NewCredentialStore(tenantStore)
		policies = memory.NewPolicyStore()
		audits = memory.NewAuditStore(0)
		logger.Info("store backend: memory")
	}

	// Cache and counter backend: Redis when configured, in-memory otherwise.
	var (
		cache    policy.Cache
		counters ratelimit.CounterStore
	)
	if cfg.Redis.Addr != "" {
		client, err := redisadapter.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cache = redisadapter.NewPolicyCache(client)
		counters = redisadapter.NewCounterStore(client)
		logger.Info("cache backend: redis", "addr", cfg.Redis.Addr)
	} else {
		memCounters := memory.NewCounterStore()
		memCounters.StartCleanup(ctx, time.Hour)
		defer memCounters.Stop()
		cache = memory.NewPolicyCache()
		counters = memCounters
		logger.Info("cache backend: memory")
	}

	// Optional file-based audit output overrides the store backend.
	if cfg.Audit.Dir != "" {
		fileStore, err := file.NewAuditStore(file.AuditConfig{
			Dir:           cfg.Audit.Dir,
			RetentionDays: cfg.Audit.RetentionDays,
			MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		}, logger)
		if err != nil {
			return fmt.Errorf("open audit directory: %w", err)
		}
		defer fileStore.Close()
		audits = fileStore
		logger.Info("audit output: file", "dir", cfg.Audit.Dir)
	}

	// Seed before serving so the first request sees the data.
	if seedFile != "" {
		seeder := service.NewSeeder(tenants, credentials, policies, logger)
		if err := seeder.LoadFile(ctx, seedFile); err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
	}

	// Async audit pipeline.
	emitter := audit.NewEmitter(audits, logger,
		audit.WithChannelSize(cfg.Audit.ChannelSize),
		audit.WithBatchSize(cfg.Audit.BatchSize),
		audit.WithFlushInterval(cfg.Audit.FlushIntervalDuration()),
	)
	emitter.Start(ctx)
	defer emitter.Stop()

	// Decision engine.
	engine := decision.NewEngine(
		policy.NewResolver(policies, cache, logger,
			policy.WithCacheTTL(time.Duration(cfg.Policy.CacheTTLSeconds)*time.Second)),
		decision.NewPipeline(guardrail.NewRegistry(counters), logger,
			decision.WithCompiledCache(decision.NewCompiledCache(decision.DefaultCompiledCacheSize))),
		emitter,
		logger,
	)

	// Proxy flow.
	client := upstream.NewClient(cfg.Upstream, cfg.Proxy, logger)
	proxyService := service.NewProxyService(
		credential.NewResolver(credentials, logger), engine, client, logger)

	// HTTP listener.
	metrics := http.NewMetrics(emitter.Dropped)
	server := http.NewServer(
		cfg.Server,
		http.NewProxyHandler(proxyService),
		http.NewHealthChecker(emitter, Version),
		metrics,
		logger,
	)

	logger.Info("cerberus starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"dev_mode", cfg.DevMode,
		"store", cfg.Store.Backend,
		"redis", cfg.Redis.Addr != "",
	)
	return server.Start(ctx)
}

// parseLogLevel converts a config log level to slog.Level, defaulting
// to info for unrecognised values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
