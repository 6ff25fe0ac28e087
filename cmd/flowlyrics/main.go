// Command flowlyrics turns a vocal take into a rhythm grid and lyric lines
// that fit it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/flowlyrics/internal/app"
	"github.com/MrWong99/flowlyrics/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	cfg   *config.Config
	level slog.LevelVar

	// closers release providers that hold native resources.
	closers []func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "flowlyrics",
		Short:         "Rhythm analysis and lyric fitting for vocal takes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "flowlyrics.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd(c))
	root.AddCommand(newValidateCmd(c))
	root.AddCommand(newGenerateCmd(c))
	root.AddCommand(newServeCmd(c))

	return root
}

// setup loads the configuration and installs the logger. A missing config
// file is only an error when --config was given explicitly.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("config file %q not found", c.configPath)
	default:
		return err
	}

	if c.logLevel != "" {
		lvl := config.LogLevel(c.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", c.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	c.cfg = cfg
	c.level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&c.level))
	slog.Debug("configuration loaded", "config", c.configPath, "store", cfg.Store.Driver, "llm", len(cfg.LLM))
	return nil
}

// build creates providers and the application from the loaded config.
func (c *cli) build(ctx context.Context, opts ...app.Option) (*app.App, *app.Providers, error) {
	reg := config.NewRegistry()
	c.registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(ctx, c.cfg, reg, recognizerProbes(), nil)
	if err != nil {
		return nil, nil, err
	}
	application, err := app.New(ctx, c.cfg, providers, append([]app.Option{app.WithVersion(version)}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return application, providers, nil
}

func (c *cli) close() {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
	c.closers = nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
