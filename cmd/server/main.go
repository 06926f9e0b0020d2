// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"certificate-service/config"
	"certificate-service/internal/handler"
	"certificate-service/internal/identifier"
	"certificate-service/internal/infra"
	"certificate-service/internal/render"
	"certificate-service/internal/repository"
	"certificate-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(os.Stdout, cfg)

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// DB初期化
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		absPath, err := filepath.Abs(cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("failed to resolve migrations directory: %w", err)
		}
		migrations := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, absPath)
		applied, err := migrations.ApplyMigrations(ctx)
		if err != nil {
			return err
		}
		slog.Info("migrations applied on startup", "count", applied)
	}

	// ドキュメント保存先
	blobs, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	// 検証キャッシュ（任意）
	var cache usecase.CertificateCache
	redisClient, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = infra.NewCertificateCache(redisClient, cfg.CacheTTL)
	}

	metrics := infra.NewMetrics(prometheus.DefaultRegisterer)

	// DI
	repo := repository.NewCertificateRepository(db)
	issuer := usecase.NewCertificateService(repo, identifier.NewGenerator(time.Now), render.NewRenderer(), blobs,
		usecase.WithUploadTimeout(cfg.UploadTimeout),
		usecase.WithMetrics(metrics),
	)
	verifier := usecase.NewVerificationService(repo, cache, metrics)
	h := handler.NewCertificateHandler(issuer, verifier, sqlDB)
	router := handler.NewRouter(h, cfg, prometheus.DefaultGatherer)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"blob_backend", cfg.BlobBackend,
		"cache_enabled", cache != nil,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// newBlobStore はBLOB_BACKENDに応じた保存先を生成する。
func newBlobStore(ctx context.Context, cfg *config.Config) (usecase.BlobStore, func(), error) {
	switch cfg.BlobBackend {
	case config.BlobBackendInline:
		return infra.NewInlineStore(), func() {}, nil
	case config.BlobBackendGCS:
		if cfg.GCSBucket == "" {
			return nil, nil, fmt.Errorf("GCS_BUCKET is required when BLOB_BACKEND=gcs")
		}
		store, err := infra.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSPublicBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init GCS client: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Error("failed to close GCS client", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}
