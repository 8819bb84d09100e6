package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"proofpay/audit"
	"proofpay/config"
	"proofpay/native/approval"
	"proofpay/native/token"
	"proofpay/observability/logging"
	"proofpay/observability/metrics"
	"proofpay/rpc"
	"proofpay/storage"
	"proofpay/zk"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv("PROOFPAY_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("approvald", env, logging.ParseLevel(cfg.LogLevel))

	issuer, err := cfg.Issuer()
	if err != nil {
		logger.Error("invalid issuer identity", slog.Any("error", err))
		os.Exit(1)
	}
	tokenID, err := cfg.Token()
	if err != nil {
		logger.Error("invalid token identity", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	verifier, err := buildVerifier(cfg.VerifyingKeyFile)
	if err != nil {
		logger.Error("failed to initialise proof verifier", slog.Any("error", err))
		os.Exit(1)
	}

	registry, err := approval.NewRegistry(issuer, tokenID, verifier)
	if err != nil {
		logger.Error("failed to initialise approval registry", slog.Any("error", err))
		os.Exit(1)
	}
	if err := registry.Bind(db); err != nil {
		logger.Error("failed to load persisted approvals", slog.Any("error", err))
		os.Exit(1)
	}

	auditDB, err := gorm.Open(sqlite.Open(cfg.AuditDSN), &gorm.Config{})
	if err != nil {
		logger.Error("failed to open audit database", slog.Any("error", err))
		os.Exit(1)
	}
	trail, err := audit.NewStore(auditDB)
	if err != nil {
		logger.Error("failed to initialise audit trail", slog.Any("error", err))
		os.Exit(1)
	}
	registry.SetEmitter(audit.NewRecorder(trail, logger))

	engine := token.NewEngine(tokenID, registry)
	engine.SetState(token.NewStoreState(db))

	server := rpc.NewServer(registry, engine, trail, logger)
	server.SetRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)

	for _, reason := range []string{"malformed", "inconsistent", "invalid_data", "overflow", "replay", "verification", "caller"} {
		metrics.Approval().InitRejectionReason(reason)
	}
	metrics.Approval().SetLive(registry.TotalLive())

	ops := chi.NewRouter()
	ops.Use(middleware.Recoverer)
	ops.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	ops.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddress, ops); err != nil {
			logger.Error("ops server terminated", slog.Any("error", err))
		}
	}()

	logger.Info("approval registry initialised",
		slog.String("issuer", cfg.IssuerAddress),
		slog.String("token", cfg.TokenAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("JSON-RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func buildVerifier(path string) (zk.Verifier, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("VerifyingKeyFile must be configured")
	}
	vk, err := zk.LoadVerifyingKey(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load verifying key %s: %w", trimmed, err)
	}
	return zk.NewGroth16Verifier(vk)
}
