package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/procminer/internal/config"
	"github.com/cloo-solutions/procminer/internal/database"
	"github.com/cloo-solutions/procminer/internal/service"
	"github.com/cloo-solutions/procminer/internal/storage"
)

// OpenStore builds the knowledge store selected by configuration presence.
// The returned close function is never nil.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool) (service.KnowledgeStore, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend() {
	case "postgres":
		if migrate {
			if err := storage.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, noop, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, noop, err
		}
		log.Println("knowledge store: postgres")
		return storage.NewPostgresStore(pool), pool.Close, nil

	case "s3":
		client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("knowledge store: s3 bucket '%s'", cfg.S3Bucket)
		return storage.NewObjectStore("s3", client), noop, nil

	case "minio":
		client, err := storage.NewMinIOClient(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, noop, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to ensure MinIO bucket: %w", err)
		}
		log.Printf("knowledge store: minio bucket '%s'", cfg.MinIOBucket)
		return storage.NewObjectStore("minio", client), noop, nil

	default:
		store, err := storage.NewLocalStore(cfg.KBDir)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("knowledge store: local directory '%s'", cfg.KBDir)
		return store, noop, nil
	}
}
