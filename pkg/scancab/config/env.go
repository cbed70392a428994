package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	PORT        - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//
//	DATABASE_URL - Connection string. "postgres://..." selects the Postgres
//	               store; empty or "memory" selects the in-memory store.
//	AUTO_MIGRATE - "true" runs the embedded migrations on startup.
//
//	STORAGE_URL - Blob storage location (one of):
//	              - "memory://" - in-memory storage (default)
//	              - "file:///path/to/data" - filesystem storage
//	              - "s3://bucket?region=us-east-1&endpoint=..." - S3 storage
//	              S3 credentials come from AWS_ACCESS_KEY_ID /
//	              AWS_SECRET_ACCESS_KEY or the default credential chain.
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		return applyStorageEnv(prefix, c)
	}
}

func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	} else {
		return fmt.Errorf("unsupported DATABASE_URL scheme: %s", dbURL)
	}

	if v, ok := lookupEnv(prefix, "AUTO_MIGRATE"); ok {
		c.AutoMigrate = v == "true" || v == "1"
	}
	return nil
}

func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, ok := lookupEnv(prefix, "STORAGE_URL")
	if !ok || storageURL == "" || storageURL == "memory://" {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "memory":
		c.Storage = StorageConfig{Type: "memory"}
	case "file":
		c.Storage = StorageConfig{Type: "fs", BaseDir: u.Path}
	case "s3":
		q := u.Query()
		c.Storage = StorageConfig{
			Type:                   "s3",
			Bucket:                 u.Host,
			Region:                 q.Get("region"),
			Endpoint:               q.Get("endpoint"),
			UsePathStyle:           q.Get("path_style") == "true",
			CreateBucketIfNotExist: q.Get("create_bucket") == "true",
			AccessKeyID:            os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}
	default:
		return fmt.Errorf("unsupported STORAGE_URL scheme: %s", u.Scheme)
	}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	if prefix != "" {
		if v, ok := os.LookupEnv(prefix + "_" + key); ok {
			return v, true
		}
	}
	return os.LookupEnv(key)
}
