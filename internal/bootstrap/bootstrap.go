// Package bootstrap assembles the market core from configuration. Both
// binaries build on it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/messaging/nats"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/jsonfile"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/localstore"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/memory"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/mongodb"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/rediskv"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/repository/sqlite"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/storage/s3"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/config"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/mailer"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/usecase"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
)

// Core is the wired market engine plus the resources it owns.
type Core struct {
	KV        domain.KeyValueStore
	Store     *localstore.Store
	Photos    domain.PhotoStore
	Catalog   *usecase.Catalog
	Favorites *usecase.Favorites
	Verifier  *usecase.InitDataVerifier

	closers []func() error
}

// OpenKV opens the key-value backend named by STORE_BACKEND.
func OpenKV(ctx context.Context, cfg *config.Config) (domain.KeyValueStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		return memory.NewKVStore(), nil
	case "file":
		kv, err := jsonfile.NewKVStore(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case "sqlite":
		db, err := sqlite.OpenConnection(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		kv := sqlite.NewKVStore(db)
		if err := kv.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return kv, nil
	case "redis":
		client, err := rediskv.NewClient(ctx, rediskv.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return rediskv.NewKVStore(client, cfg.ServiceName+":"), nil
	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		return mongodb.NewKVStore(client, client.Database(cfg.MongoDatabase)), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Build opens every configured backend and wires the core. m may be nil.
// Event publishing and moderation mail are attached only when configured.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.MetricsManager) (*Core, error) {
	kv, err := OpenKV(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	log.Info("key-value store opened", zap.String("backend", cfg.StoreBackend))

	c := &Core{KV: kv, Store: localstore.New(kv)}
	c.closers = append(c.closers, kv.Close)
	c.Photos = c.Store

	if cfg.PhotoBackend == "minio" {
		ps, err := s3.NewPhotoStore(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open photo store: %w", err)
		}
		c.Photos = ps
	}

	c.Favorites = usecase.NewFavorites(c.Store, log)
	opts := []usecase.CatalogOption{usecase.WithFavoritesPurger(c.Favorites)}
	if m != nil {
		c.Favorites.WithMetrics(m)
		opts = append(opts, usecase.WithMetrics(m))
	}

	if cfg.NATSURL != "" {
		pub, err := nats.NewPublisher(cfg.NATSURL, log, cfg.ServiceName)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		c.closers = append(c.closers, func() error { pub.Close(); return nil })
		c.Favorites.WithEvents(pub)
		opts = append(opts, usecase.WithEventPublisher(pub))
	}

	if cfg.MailerEnabled() {
		dialer := mailer.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		opts = append(opts, usecase.WithModerationNotifier(
			mailer.NewModerationMailer(dialer, cfg.SMTPFrom, cfg.ModeratorEmail, cfg.PublicBaseURL),
		))
		log.Info("moderation mail enabled", zap.String("moderator", cfg.ModeratorEmail))
	}

	c.Catalog = usecase.NewCatalog(c.Store, c.Photos, log, opts...)
	c.Verifier = usecase.NewInitDataVerifier(cfg.TelegramBotToken, cfg.TelegramAuthMaxAge)

	if err := c.Catalog.Load(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
