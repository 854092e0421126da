// CLAUDE:SUMMARY flowkeeper binary: cobra CLI over the ingest service (record, ingest, list, delete, search, stats, serve).
// Command flowkeeper records, sanitizes and stores UI flows and related
// documents, and serves them over HTTP and MCP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/flowkeeper/ingest"
)

const version = "0.3.0"

// rootOptions holds the global flags.
type rootOptions struct {
	ConfigPath string
	DataDir    string
	HashDB     string
	VectorDB   string
	FlowsDir   string
	LogLevel   string

	logger *slog.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flowkeeper:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "flowkeeper",
		Short: "Record, sanitize and store UI flows for test generation",
		Long: `flowkeeper turns recorded browser interactions into sanitized,
canonical artifacts and stores them only when they changed. It also loads
documents, web pages, Jira issues and UI-crawl logs into the same store.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.LogLevel)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	f.StringVar(&opts.DataDir, "data-dir", "", "base directory of the stores (default \"data\")")
	f.StringVar(&opts.HashDB, "db", "", "hash store database")
	f.StringVar(&opts.VectorDB, "vec-db", "", "document store database")
	f.StringVar(&opts.FlowsDir, "flows-dir", "", "directory of persisted flow files")
	f.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newRecordCommand(opts),
		newIngestCommand(opts),
		newListCommand(opts),
		newDeleteCommand(opts),
		newSearchCommand(opts),
		newStatsCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// config loads the config file, then applies flags and environment.
func (o *rootOptions) config() (*ingest.Config, error) {
	cfg := &ingest.Config{}
	if o.ConfigPath != "" {
		var err error
		if cfg, err = ingest.LoadConfigFile(o.ConfigPath); err != nil {
			return nil, err
		}
	}
	for dst, v := range map[*string]string{
		&cfg.DataDir:  o.DataDir,
		&cfg.HashDB:   o.HashDB,
		&cfg.VectorDB: o.VectorDB,
		&cfg.FlowsDir: o.FlowsDir,
	} {
		if v != "" {
			*dst = v
		}
	}
	cfg.ApplyEnv()
	cfg.Logger = o.logger
	return cfg, nil
}

func (o *rootOptions) open() (*ingest.Service, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return ingest.Open(*cfg)
}

// withService opens the service for the duration of fn.
func (o *rootOptions) withService(fn func(*ingest.Service) error) error {
	svc, err := o.open()
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
