package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scancab/scancab/pkg/scancab"
	memoryrepo "github.com/scancab/scancab/pkg/scancab/repo/memory"
	postgresrepo "github.com/scancab/scancab/pkg/scancab/repo/postgres"
	fsstorage "github.com/scancab/scancab/pkg/scancab/storage/fs"
	memorystorage "github.com/scancab/scancab/pkg/scancab/storage/memory"
	s3storage "github.com/scancab/scancab/pkg/scancab/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		Storage: StorageConfig{
			Type: "memory",
		},
	}
}

// ServerConfig represents server configuration for the scancab service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	AutoMigrate  bool   // run embedded migrations on startup (postgres only)

	// Blob storage configuration
	Storage StorageConfig
}

// StorageConfig represents configuration for the blob storage backend.
// Fields are typed rather than a loose map so misconfiguration fails at
// load time, not at first use.
type StorageConfig struct {
	Type string // "memory", "fs", "s3"

	// fs
	BaseDir string

	// s3
	Region                 string
	Bucket                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	CreateBucketIfNotExist bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("storage base_dir is required for fs storage")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	return nil
}

// BuildStore creates a Store based on the configuration
func (c *ServerConfig) BuildStore(ctx context.Context) (scancab.Store, error) {
	switch c.DatabaseType {
	case "memory":
		return memoryrepo.New(), nil
	case "postgres":
		if c.AutoMigrate {
			if err := postgresrepo.RunMigrations(ctx, c.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return postgresrepo.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildBlobStore creates a BlobStore based on the configuration
func (c *ServerConfig) BuildBlobStore() (scancab.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.Storage.Region,
			Bucket:                 c.Storage.Bucket,
			AccessKeyID:            c.Storage.AccessKeyID,
			SecretAccessKey:        c.Storage.SecretAccessKey,
			Endpoint:               c.Storage.Endpoint,
			UsePathStyle:           c.Storage.UsePathStyle,
			CreateBucketIfNotExist: c.Storage.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}

// BuildService creates a Service and Sweeper from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (scancab.Service, *scancab.Sweeper, error) {
	store, err := c.BuildStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build store: %w", err)
	}
	blobs, err := c.BuildBlobStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build blob store: %w", err)
	}

	svc, err := scancab.New(
		scancab.WithStore(store),
		scancab.WithBlobStore(blobs),
		scancab.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	sweeper, err := scancab.NewSweeper(store, blobs, logger)
	if err != nil {
		return nil, nil, err
	}

	return svc, sweeper, nil
}
