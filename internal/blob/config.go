package blob

import (
	"context"
	"fmt"

	"github.com/fomcagent/datasync/internal/utils"
)

const (
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend string       `mapstructure:"backend"`
	S3      S3Config     `mapstructure:"s3"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

type SQLiteConfig struct {
	Path       string `mapstructure:"path"`
	BucketName string `mapstructure:"bucket_name"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendS3:
		return c.S3.Validate()
	case BackendSQLite:
		return c.SQLite.Validate()
	default:
		return fmt.Errorf("unknown destination backend %q", c.Backend)
	}
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	// credentials are either both set or both left to the default chain
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if c.Endpoint != "" && !utils.IsValidURL(c.Endpoint) {
		return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
	}
	return nil
}

func (c *SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path required")
	}
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	return nil
}

// ClosableStore is a Store that holds resources until closed
type ClosableStore interface {
	Store
	Close() error
}

// Open builds the store selected by cfg.Backend
func Open(ctx context.Context, cfg *Config) (ClosableStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("destination config: %w", err)
	}

	switch cfg.Backend {
	case BackendS3:
		return NewS3StoreWithConfig(ctx, &cfg.S3)
	case BackendSQLite:
		return OpenSQLiteStore(&cfg.SQLite)
	}
	return nil, fmt.Errorf("unknown destination backend %q", cfg.Backend)
}
