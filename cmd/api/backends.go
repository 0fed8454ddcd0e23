package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/avatar"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

// backends holds the storage adapters chosen by configuration.
type backends struct {
	students roster.Repository
	history  attendance.HistoryRepository
	accounts auth.Store
	drafts   attendance.DraftStore
	claims   attendance.Claimer
	queue    queue.Queue
	avatars  avatar.Uploader
	checks   map[string]httpapi.Check

	db    *store.DB
	redis *store.Redis
}

func openBackends(ctx context.Context, cfg config.App, log zerolog.Logger) (*backends, error) {
	b := &backends{checks: map[string]httpapi.Check{}}

	switch cfg.StoreBackend {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		b.students = roster.NewMemoryRepository()
		b.history = attendance.NewMemoryRepository()
		b.accounts = auth.NewMemoryStore()
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := store.NewDB(connectCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		b.db = db
		m, err := store.NewMigrator(db.Client)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := m.Up(); err != nil {
			b.Close()
			return nil, err
		}
		b.students = roster.NewPostgresRepository(db.Client)
		b.history = attendance.NewPostgresRepository(db.Client)
		b.accounts = auth.NewPostgresStore(db.Client)
		b.checks["db"] = db.Healthy
	}

	if cfg.QueueBackend == "redis" || cfg.DraftBackend == "redis" {
		b.redis = store.NewRedis(cfg.RedisAddr)
		b.checks["redis"] = b.redis.Healthy
		b.claims = attendance.NewRedisClaimer(b.redis.Client, "")
	} else {
		b.claims = attendance.NewMemoryClaimer()
	}

	if cfg.QueueBackend == "redis" {
		b.queue = queue.NewRedisQueue(b.redis.Client, "")
	} else {
		b.queue = queue.NewInMemory(64)
	}
	if cfg.DraftBackend == "redis" {
		b.drafts = attendance.NewRedisDraftStore(b.redis.Client, "")
	} else {
		b.drafts = attendance.NewMemoryDraftStore()
	}

	switch cfg.AvatarBackend {
	case "cloudinary":
		b.avatars = avatar.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("avatar storage: cloudinary")
	case "minio":
		up, err := avatar.NewMinIO(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOPublicURL, cfg.MinIOUseSSL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.avatars = up
		log.Info().Str("endpoint", cfg.MinIOEndpoint).Str("bucket", cfg.MinIOBucket).Msg("avatar storage: minio")
	default:
		b.avatars = avatar.Disabled{}
		log.Info().Msg("avatar storage not configured")
	}
	return b, nil
}

// Close releases database and redis connections.
func (b *backends) Close() {
	_ = b.db.Close()
	_ = b.redis.Close()
}
