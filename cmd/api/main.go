package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/sharefiles/internal/blob"
	"github.com/abduss/sharefiles/internal/config"
	"github.com/abduss/sharefiles/internal/download"
	"github.com/abduss/sharefiles/internal/logger"
	"github.com/abduss/sharefiles/internal/metadata"
	"github.com/abduss/sharefiles/internal/server"
	"github.com/abduss/sharefiles/internal/storage"
	"github.com/abduss/sharefiles/internal/sweeper"
	"github.com/abduss/sharefiles/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := openMetadata(ctx, cfg)
	if err != nil {
		zlog.Fatal("open metadata store", zap.Error(err))
	}
	defer meta.Close()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		zlog.Fatal("open blob store", zap.Error(err))
	}

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		zlog.Fatal("connect redis", zap.Error(err))
	}
	defer closeLocker()

	uploadService := upload.NewService(meta, blob.WithLocker(blobs, locker), zlog, cfg.Upload.MaxRetention)
	downloadService := download.NewService(meta, blobs, zlog, download.Options{
		ArchiveName:      cfg.Download.ArchiveName,
		CompressionLevel: cfg.Download.CompressionLevel,
	})

	sweep := sweeper.New(meta, blobs, zlog, sweeper.Config{
		Interval:      cfg.Sweeper.Interval,
		Concurrency:   cfg.Sweeper.Concurrency,
		DeleteEntries: cfg.Sweeper.DeleteEntries,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if err := sweep.Start(ctx); err != nil {
			zlog.Error("sweeper stopped", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Dependencies{
		Config:   cfg,
		Logger:   zlog,
		Metadata: meta,
		Blobs:    blobs,
		Upload:   uploadService,
		Download: downloadService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zlog.Info("sharefiles API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("metadata", cfg.Metadata.Backend),
			zap.String("blobs", cfg.Blob.Backend),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zlog.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("shutdown error", zap.Error(err))
	}
	<-sweepDone
}

func openMetadata(ctx context.Context, cfg config.Config) (metadata.Store, error) {
	switch cfg.Metadata.Backend {
	case config.MetadataPostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return metadata.NewPostgresStore(pool), nil
	case config.MetadataSQLite:
		db, err := storage.NewSQLite(ctx, cfg.Metadata.SQLitePath)
		if err != nil {
			return nil, err
		}
		return metadata.NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Metadata.Backend)
	}
}

func openBlobs(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case config.BlobMinIO:
		client, err := storage.NewMinIOClient(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return blob.NewMinIOStore(client, cfg.MinIO.Bucket), nil
	case config.BlobFS:
		return blob.NewFSStore(cfg.Blob.Dir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}

// openLocker serializes appends in-process unless Redis is configured, in
// which case several API replicas can share one blob store.
func openLocker(ctx context.Context, cfg config.Config) (blob.Locker, func(), error) {
	if !cfg.Redis.Enabled() {
		return blob.NewKeyedMutex(), func() {}, nil
	}

	rdb, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return blob.NewRedisLocker(rdb, cfg.Redis.LockTTL), func() { rdb.Close() }, nil
}
