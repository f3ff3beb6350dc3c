package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fomcagent/datasync/internal/config"
	"github.com/fomcagent/datasync/internal/utils"
	"github.com/fomcagent/datasync/internal/version"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var errSyncFailed = errors.New("one or more sources failed")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "datasync",
		Short:         "Mirror remote datasets into an object store, writing only what changed",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./datasync.yaml or ~/.config/datasync/datasync.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this file")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	closeLogFile()
	if err != nil {
		if !errors.Is(err, errSyncFailed) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config selected by --config and binds flags named in
// bindings that exist on cmd.
func loadConfig(cmd *cobra.Command, bindings config.FlagBindings) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags(), bindings)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	slog.Debug("config loaded",
		"path", cfg.Path,
		"backend", cfg.Destination.Backend,
		"access_key", utils.MaskSecret(cfg.Destination.S3.AccessKey),
	)
	return cfg, nil
}

var logFile *os.File

func closeLogFile() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func setupLogging(cmd *cobra.Command) error {
	levelName, _ := cmd.Flags().GetString("log-level")
	level, err := parseLevel(levelName)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	handlers := []slog.Handler{
		tint.NewHandler(stderr, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !isTerminal(stderr),
		}),
	}

	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		if err := utils.EnsureParent(path); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		closeLogFile()
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return level, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
