package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"adswap/internal/bus"
	"adswap/internal/config"
)

type Dependencies struct {
	// DB is nil unless settings are stored in postgres.
	DB  *sql.DB
	Bus bus.Bus
}

func (d *Dependencies) Close() {
	if d.Bus != nil {
		d.Bus.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

// Pinger is the part of *sql.DB the retry loop needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.SettingsStore == config.StorePostgres {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = db
	}

	switch cfg.Transport {
	case config.TransportNSQ:
		// Reply and replace topics are per instance; their consumers connect to
		// nsqd directly, which creates the topic on subscribe.
		b, err := bus.NewNSQ(cfg.NSQDHost, cfg.NSQLookupd, cfg.HandlerConcurrency, config.InstanceTopicPrefixes()...)
		if err != nil {
			deps.Close()
			return nil, err
		}
		bus.CreateTopics(cfg.NSQDHTTP, config.TopicCheckElement, config.TopicPredict)
		deps.Bus = b
	default:
		deps.Bus = bus.NewLocal()
	}

	return deps, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// PingWithRetry pings up to attempts times, sleeping delay between tries.
func PingWithRetry(ctx context.Context, db Pinger, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}
