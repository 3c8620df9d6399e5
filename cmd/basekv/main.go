package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/basekv/basekv/internal/base"
	cfgpkg "github.com/basekv/basekv/internal/config"
	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/manager"
	pebblestore "github.com/basekv/basekv/internal/storage/pebble"
	"github.com/basekv/basekv/internal/streamlog"
	logpkg "github.com/basekv/basekv/pkg/log"
)

func main() {
	level := os.Getenv("BASEKV_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "basekv",
		Short: "basekv runtime CLI",
		Long:  "basekv is a single-binary event-sourced key-value runtime. This CLI drives it directly, without a separate server process.",
	}

	var (
		dataDir   string
		embedded  bool
		natsURL   string
		stream    string
		statsPfx  string
		keepAlive int
	)
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (defaults to the OS application data directory)")
	rootCmd.PersistentFlags().BoolVar(&embedded, "embedded", false, "Use an in-process, Pebble-backed log instead of dialing NATS JetStream")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS JetStream URL (ignored with --embedded)")
	rootCmd.PersistentFlags().StringVar(&stream, "stream", "default", "Base's stream name")
	rootCmd.PersistentFlags().StringVar(&statsPfx, "stats-stream-prefix", "", "Prefix for the stats stream (empty keeps the configured prefix)")
	rootCmd.PersistentFlags().IntVar(&keepAlive, "keep-alive-seconds", 0, "Idle base eviction window in seconds (0 keeps the configured window)")

	openManager := func(ctx context.Context) (*manager.Manager, func(), error) {
		cfg := cfgpkg.Default()
		cfgpkg.FromEnv(&cfg)
		if dataDir != "" {
			cfg.DBPath = dataDir
		}
		if statsPfx != "" {
			cfg.StatsStreamPrefix = statsPfx
		}
		if keepAlive > 0 {
			cfg.KeepAliveSeconds = keepAlive
		}
		if natsURL != "" {
			cfg.Nats.URL = natsURL
		}

		opts := manager.Options{Config: cfg, Logger: logger}
		var embeddedDB *pebblestore.DB
		if embedded {
			logDir := filepath.Join(cfg.DBPath, "_log")
			db, err := pebblestore.Open(pebblestore.Options{DataDir: logDir, Fsync: pebblestore.FsyncModeAlways})
			if err != nil {
				return nil, nil, fmt.Errorf("open embedded log: %w", err)
			}
			embeddedDB = db
			opts.Client = streamlog.NewMemLog(db)
		}

		m := manager.New(opts)
		cleanup := func() {
			m.CloseAll()
			if embeddedDB != nil {
				embeddedDB.Close()
			}
		}
		return m, cleanup, nil
	}

	getBase := func(ctx context.Context) (*base.Base, func(), error) {
		m, cleanup, err := openManager(ctx)
		if err != nil {
			return nil, nil, err
		}
		b, err := m.Get(ctx, stream)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return b, cleanup, nil
	}

	rootCmd.AddCommand(
		newGetCmd(getBase),
		newPutCmd(getBase),
		newInsertCmd(getBase),
		newDeleteCmd(getBase),
		newKeysCmd(getBase),
		newQueryCmd(getBase),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newGetCmd(getBase func(context.Context) (*base.Base, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			b, cleanup, err := getBase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := b.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func newPutCmd(getBase func(context.Context) (*base.Base, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "put <id> <json>",
		Short: "Upsert a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
				return fmt.Errorf("invalid json payload: %w", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			b, cleanup, err := getBase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := b.Put(ctx, args[0], data)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func newInsertCmd(getBase func(context.Context) (*base.Base, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <json>",
		Short: "Insert a record under a fresh generated id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(args[0]), &data); err != nil {
				return fmt.Errorf("invalid json payload: %w", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			b, cleanup, err := getBase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := b.Insert(ctx, data)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func newDeleteCmd(getBase func(context.Context) (*base.Base, func(), error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			b, cleanup, err := getBase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := b.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func newKeysCmd(getBase func(context.Context) (*base.Base, func(), error)) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List live keys, optionally filtered by a regular expression",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			b, cleanup, err := getBase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			keys, err := b.Keys(ctx, pattern)
			if err != nil {
				return err
			}
			return printJSON(keys)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Regular expression substring filter")
	return cmd
}

func newQueryCmd(getBase func(context.Context) (*base.Base, func(), error)) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "query <predicate-json>",
		Short: "Query records by a Mongo-like operator predicate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pred map[string]interface{}
			if err := json.Unmarshal([]byte(args[0]), &pred); err != nil {
				return fmt.Errorf("invalid predicate json: %w", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			b, cleanup, err := getBase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := b.Query(ctx, pred, queryOptions(limit, offset))
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")
	return cmd
}

func queryOptions(limit, offset int) docstore.QueryOptions {
	return docstore.QueryOptions{Limit: limit, Offset: offset}
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
