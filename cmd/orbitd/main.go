// orbitd is the Orbit ledger server: it exposes log ingestion, lineage
// reconstruction, bundle generation and verification over HTTP, backed by a
// SQLite or Postgres event store.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orbitlabs/orbit/pkg/audit"
	"github.com/orbitlabs/orbit/pkg/bundle"
	"github.com/orbitlabs/orbit/pkg/config"
	"github.com/orbitlabs/orbit/pkg/observability"
	"github.com/orbitlabs/orbit/pkg/orbit"
	"github.com/orbitlabs/orbit/pkg/registry"
	"github.com/orbitlabs/orbit/pkg/store"
)

func main() {
	log.Println("[orbitd] starting")
	ctx := context.Background()
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	reg := registry.NewInMemory()
	var resolver registry.Resolver = reg
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		resolver = registry.NewCachedResolver(reg, redis.NewClient(redisOpts), 30*time.Second)
		log.Println("[orbitd] redis: key cache enabled")
	}

	var rules []bundle.CustomRule
	retention := make(map[string]config.RetentionConfig)
	if cfg.OrgSeedDir != "" {
		profiles, err := config.LoadAllProfiles(cfg.OrgSeedDir)
		if err != nil {
			log.Fatalf("org profiles: %v", err)
		}
		for _, p := range profiles {
			if _, err := reg.Create(ctx, registry.CreateRequest{
				OrgID:       p.OrgID,
				DisplayName: p.DisplayName,
				Scopes:      p.Scopes,
				IsSandbox:   p.Sandbox,
				KeyTTL:      p.KeyTTL(),
			}); err != nil {
				log.Fatalf("seed org %s: %v", p.OrgID, err)
			}
			retention[p.OrgID] = p.Retention
			for _, r := range p.Rules {
				rules = append(rules, bundle.CustomRule{
					Name:        r.Name,
					Expression:  r.Expression,
					Description: r.Description,
					Severity:    r.Severity,
				})
			}
		}
		log.Printf("[orbitd] seeded %d organisations", len(profiles))
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "orbit-ledger",
		ServiceVersion: "1.0.0",
		Environment:    env(cfg.SandboxMode),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       cfg.SandboxMode,
	})
	if err != nil {
		log.Fatalf("observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	svc, err := orbit.New(st, resolver, orbit.Options{
		Auditor: audit.NewLogger(),
		Logger:  logger,
		Rules:   rules,
	})
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	srv := newServer(svc, st, []byte(cfg.JWTSecret), obs, logger).withRetention(retention)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openStore(ctx context.Context, dsn string) (store.Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return store.OpenPostgres(ctx, dsn)
	}
	return store.OpenSQLite(ctx, strings.TrimPrefix(dsn, "file:"))
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(sandbox bool) string {
	if sandbox {
		return "sandbox"
	}
	return "production"
}
