package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/app"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/assets"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/cache"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/config"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/search"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)
	ctx := context.Background()

	boards, db, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("store init failed")
	}
	if db != nil {
		defer db.Close()
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewFallback(boards))
	go searchService.ReindexAll(ctx)

	service := app.New(cfg, boards, searchService)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.AnalyticsCacheTTL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer redisCache.Close()
		service.UseCache(redisCache)
		log.WithField("ttl", cfg.AnalyticsCacheTTL).Info("analytics cache enabled")
	}

	if strings.TrimSpace(cfg.AssetEndpoint) != "" {
		bucket, err := assets.NewMinioStore(ctx, assets.Config{
			Endpoint:  cfg.AssetEndpoint,
			AccessKey: cfg.AssetAccessKey,
			SecretKey: cfg.AssetSecretKey,
			Bucket:    cfg.AssetBucket,
			Prefix:    cfg.AssetPrefix,
			UseSSL:    cfg.AssetUseSSL,
			MaxBytes:  cfg.AssetMaxBytes,
		})
		if err != nil {
			log.WithError(err).Fatal("asset bucket init failed")
		}
		service.UseAssets(bucket)
		log.WithField("bucket", cfg.AssetBucket).Info("asset uploads enabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"addr": cfg.Addr, "store": cfg.StoreDriver}).Info("inspo API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

// openStore returns the configured board store. db is nil for the memory
// driver.
func openStore(ctx context.Context, cfg config.Config) (store.Store, *sql.DB, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; boards are lost on restart")
		return store.NewMemoryStore(), nil, nil
	case config.StoreDriverPostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
		if err != nil {
			return nil, nil, err
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewPostgresStore(db), db, nil
	default:
		return nil, nil, errors.New("unknown INSPO_STORE_DRIVER " + cfg.StoreDriver)
	}
}

func setupLogging(cfg config.Config) {
	if strings.EqualFold(cfg.LogFormat, "text") {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
