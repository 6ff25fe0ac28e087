package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/flowlyrics/internal/app"
	"github.com/MrWong99/flowlyrics/internal/config"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// shutdownTimeout bounds graceful shutdown of the serve command.
const shutdownTimeout = 15 * time.Second

// ── analyze ───────────────────────────────────────────────────────────────────

func newAnalyzeCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze <wav>",
		Short: "Print the rhythm grid of a vocal take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.shutdown(application)

			p := application.Pipeline()
			buf, err := p.Load(args[0])
			if err != nil {
				return err
			}
			grid, err := p.Analyze(cmd.Context(), buf)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rhythm.NewPivot(grid))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGrid(grid))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the pivot document as JSON")
	return cmd
}

// ── validate ──────────────────────────────────────────────────────────────────

func newValidateCmd(c *cli) *cobra.Command {
	var (
		gridPath string
		block    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "validate --grid <grid.json> <line>...",
		Short: "Score lyric lines against a saved grid or pivot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := readGrid(gridPath, block)
			if err != nil {
				return err
			}
			application, _, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.shutdown(application)

			sel, err := application.Pipeline().Validate(cmd.Context(), grid, args)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sel)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderResults(sel.Results, sel.WinnerIndex))
			return nil
		},
	}
	cmd.Flags().StringVar(&gridPath, "grid", "", "grid or pivot JSON file (as printed by analyze --json)")
	cmd.Flags().IntVar(&block, "block", 0, "pivot block to validate against")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	_ = cmd.MarkFlagRequired("grid")
	return cmd
}

// readGrid loads a grid record or a pivot document from path.
func readGrid(path string, block int) (rhythm.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rhythm.Grid{}, err
	}
	var probe struct {
		Blocks json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return rhythm.Grid{}, fmt.Errorf("parse %q: %w", path, err)
	}
	if probe.Blocks == nil {
		var g rhythm.Grid
		if err := json.Unmarshal(data, &g); err != nil {
			return rhythm.Grid{}, fmt.Errorf("parse grid %q: %w", path, err)
		}
		return g, nil
	}
	var p rhythm.Pivot
	if err := json.Unmarshal(data, &p); err != nil {
		return rhythm.Grid{}, fmt.Errorf("parse pivot %q: %w", path, err)
	}
	if block < 0 || block >= len(p.Blocks) {
		return rhythm.Grid{}, fmt.Errorf("block %d out of range (pivot has %d)", block, len(p.Blocks))
	}
	return p.Blocks[block].Grid(p.Meta), nil
}

// ── generate ──────────────────────────────────────────────────────────────────

func newGenerateCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "generate <wav>",
		Short: "Analyse a take, generate candidate lines and pick the best fit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, providers, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.shutdown(application)
			if providers.LLM == nil {
				slog.Warn("no llm configured, using mock candidates")
			}

			res, err := application.Pipeline().Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderMetadata(res.Metadata))
			if len(res.Validations) > 0 {
				winner := -1
				for i, r := range res.Validations {
					if res.HasWinner && r.Text == res.BestLine {
						winner = i
						break
					}
				}
				fmt.Fprintln(out, renderResults(res.Validations, winner))
			}
			fmt.Fprintln(out, renderBest(res.BestLine, res.BestScore, res.HasWinner))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")
	return cmd
}

// ── serve ─────────────────────────────────────────────────────────────────────

func newServeCmd(c *cli) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context(), watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload analysis, validation and generation settings when the config file changes")
	return cmd
}

func (c *cli) serve(ctx context.Context, watch bool) error {
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "flowlyrics",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, providers, err := c.build(ctx, app.WithMetrics(observe.DefaultMetrics()))
	if err != nil {
		return err
	}

	printStartupSummary(os.Stdout, c.cfg, providers)
	if report := application.Health().Evaluate(ctx); report.Status != "ok" {
		slog.Warn("not ready at startup", "checks", report.Checks)
	}

	if watch {
		w, err := config.NewWatcher(c.configPath, func(_, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				c.level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.Apply(next, d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down", "addr", c.cfg.Server.ListenAddr)
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = application.Shutdown(shutdownCtx)
	c.close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (c *cli) shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	c.close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
