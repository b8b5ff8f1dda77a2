package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/mindengage-scenarios/internal/api/http"
	auth "github.com/mind-engage/mindengage-scenarios/internal/auth/middleware"
	"github.com/mind-engage/mindengage-scenarios/internal/cache"
	"github.com/mind-engage/mindengage-scenarios/internal/config"
	"github.com/mind-engage/mindengage-scenarios/internal/db"
	"github.com/mind-engage/mindengage-scenarios/internal/logger"
	"github.com/mind-engage/mindengage-scenarios/internal/observability"
	"github.com/mind-engage/mindengage-scenarios/internal/scenario"
	storage "github.com/mind-engage/mindengage-scenarios/internal/storage"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		// logger not built yet
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("gateway stopped", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	shutdownTracing := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: cfg.Otel.ServiceName,
		Environment: string(cfg.Mode),
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
		Headers:     cfg.Otel.Headers,
		SampleRatio: cfg.Otel.SampleRatio,
	})

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	driver := db.Normalize(cfg.DBDriver)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()
	store := scenario.NewSQLStore(dbh, driver)

	// --- Graph cache (optional) ---
	var graphs scenario.GraphStore = store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, graph cache will fall through to the database", "addr", cfg.RedisAddr, "error", err)
		}
		graphs = cache.NewGraphCache(rdb, store, cfg.GraphCacheTTL, log)
	}

	engine := scenario.NewEngine(graphs, store, scenario.WithLogger(log))

	// --- Auth (local JWT for offline/dev) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.AuthTokenTTL)
	if err := auth.SeedAdmin(ctx, store, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		return err
	}
	if cfg.Mode == config.ModeOffline && cfg.EnableLocalAuth && cfg.SeedDevUsers {
		if err := auth.SeedDevUsers(ctx, store); err != nil {
			return err
		}
	}

	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.RouterDeps{
			Engine:             engine,
			Graphs:             graphs,
			Users:              store,
			Auth:               authSvc,
			Blobs:              bs,
			Log:                log,
			CORSOrigins:        cfg.CORSOrigins(),
			RequestTimeout:     cfg.RequestTimeout,
			EnableLocalAuth:    cfg.EnableLocalAuth,
			AllowClaimFallback: cfg.Mode == config.ModeOffline,
			Ready:              dbh.PingContext,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver, "cache", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down")
		err := srv.Shutdown(sctx)
		if terr := shutdownTracing(sctx); terr != nil {
			log.Warn("tracing shutdown", "error", terr)
		}
		return err
	})
	return g.Wait()
}
