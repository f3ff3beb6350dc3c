package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fomcagent/datasync/internal/fetch"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "DATASYNC"
	configFileName = "datasync"
)

// FlagBindings maps config keys to command flag names
type FlagBindings map[string]string

func setDefaults(v *viper.Viper) {
	retry := fetch.DefaultRetryPolicy()

	v.SetDefault("destination.backend", "s3")
	v.SetDefault("destination.s3.bucket_name", "")
	v.SetDefault("destination.s3.region", "us-east-1")
	v.SetDefault("destination.s3.access_key", "")
	v.SetDefault("destination.s3.secret_key", "")
	v.SetDefault("destination.s3.endpoint", "")
	v.SetDefault("destination.s3.use_accelerate", false)
	v.SetDefault("destination.sqlite.path", "datasync.db")
	v.SetDefault("destination.sqlite.bucket_name", "datasync")

	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout", fetch.DefaultTimeout)
	v.SetDefault("http.download_timeout", fetch.DefaultDownloadTimeout)
	v.SetDefault("http.retry.max_tries", retry.MaxTries)
	v.SetDefault("http.retry.initial_interval", retry.InitialInterval)
	v.SetDefault("http.retry.max_interval", retry.MaxInterval)
	v.SetDefault("http.retry.multiplier", retry.Multiplier)
	v.SetDefault("http.retry.randomization_factor", retry.RandomizationFactor)

	v.SetDefault("lock.dir", DefaultLockDir)
	v.SetDefault("lock.wait", time.Duration(0))
	v.SetDefault("listing.timezone", "UTC")
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.delay", time.Second)

	v.SetDefault("bls.base_url", DefaultBLSBaseURL)
	v.SetDefault("bls.series", []string{})
	v.SetDefault("bls.patterns", []string{DefaultBLSPattern})
	v.SetDefault("bls.api_key", "")
}

// Load reads the config file at path, or the first datasync.{yaml,json}
// found in the working directory and ~/.config/datasync when path is empty.
// Environment variables (DATASYNC_DESTINATION_S3_BUCKET_NAME, ...) override
// the file, and changed flags override both.
func Load(path string, flags *pflag.FlagSet, bindings FlagBindings) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "datasync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	if flags != nil {
		for key, name := range bindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return cfg, nil
}
