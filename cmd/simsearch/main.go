package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viant/simsearch/engine"
	"github.com/viant/simsearch/internal/config"
	logpkg "github.com/viant/simsearch/internal/logger"
	"github.com/viant/simsearch/internal/server"
	"github.com/viant/simsearch/modelstore"
	"github.com/viant/simsearch/vec"
	"github.com/viant/simsearch/vecadmin"
	"github.com/viant/simsearch/vector"
	"github.com/viant/simsearch/vecutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once config is resolved.
type app struct {
	cfg    config.Config
	env    string
	logger *zap.Logger
	store  *vector.SQLiteStore
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.DB().Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

type globalFlags struct {
	configPath string
	dsn        string
}

func (g *globalFlags) open() (*app, error) {
	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, err
	}
	if g.dsn != "" {
		cfg.Database.DSN = g.dsn
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := engine.RegisterVectorFunctions(nil); err != nil {
		return nil, err
	}
	db, err := engine.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store, err := vector.NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{cfg: cfg, env: env, logger: logger, store: store}, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:          "simsearch",
		Short:        "Sparse cosine similarity search over SQLite-backed datasets",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path (default config/<ENV>.yaml)")
	rootCmd.PersistentFlags().StringVar(&g.dsn, "dsn", "", "SQLite DSN, overrides database.dsn")

	rootCmd.AddCommand(
		newLoadCmd(g),
		newSearchCmd(g),
		newReindexCmd(g),
		newExportCmd(g),
		newServeCmd(g),
		newSQLCmd(g),
	)
	return rootCmd
}

func newLoadCmd(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load documents from a YAML records file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.close()
			docs, err := readRecords(file)
			if err != nil {
				return err
			}
			ids, err := a.store.AddDocuments(cmd.Context(), docs)
			if err != nil {
				return err
			}
			a.logger.Info("Loaded documents", zap.String("file", file), zap.Int("count", len(ids)))
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d documents\n", len(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML records file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		dataset       string
		rawVector     string
		dim           int
		maxCount      int
		minSimilarity float64
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank a dataset against a query vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.close()
			query, err := vecutil.ParseVector(dim, rawVector)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max") {
				maxCount = a.cfg.Search.DefaultMaxCount
			}
			if !cmd.Flags().Changed("min") {
				minSimilarity = a.cfg.Search.DefaultMinSimilarity
			}
			idx, err := vecutil.NewIndex(a.store, dataset, nil,
				vecutil.WithShards(a.cfg.Search.Shards),
				vecutil.WithPersistedModels(a.store.DB()),
			)
			if err != nil {
				return err
			}
			hits, err := idx.Query(cmd.Context(), query, maxCount, minSimilarity)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range hits {
				fmt.Fprintf(out, "%d\t%.6f\t%s\n", h.ID, h.Score, h.Content)
			}
			a.logger.Debug("Search complete", zap.String("dataset", dataset), zap.Int("matches", len(hits)))
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&rawVector, "vector", "", "Query vector: JSON/CSV floats, idx:weight pairs or base64 blob")
	cmd.Flags().IntVar(&dim, "dim", 0, "Query dimensionality (required for idx:weight pairs)")
	cmd.Flags().IntVar(&maxCount, "max", 10, "Maximum number of matches")
	cmd.Flags().Float64Var(&minSimilarity, "min", 0, "Minimum similarity (inclusive)")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func newReindexCmd(g *globalFlags) *cobra.Command {
	var datasets []string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild and persist dataset models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.close()
			if len(datasets) == 0 {
				if datasets, err = a.store.Datasets(cmd.Context()); err != nil {
					return err
				}
			}
			for _, ds := range datasets {
				model, err := modelstore.Reindex(cmd.Context(), a.store.DB(), a.store, ds, a.cfg.Search.Shards)
				if err != nil {
					return err
				}
				a.logger.Info("Reindexed dataset",
					zap.String("dataset", ds),
					zap.Int64("scn", model.SCN),
					zap.Int("documents", model.Index.Len()),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tscn=%d\tdocuments=%d\n", ds, model.SCN, model.Index.Len())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&datasets, "dataset", nil, "Datasets to reindex (default all)")
	return cmd
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var dataset, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a dataset model to a compressed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.close()
			model, fresh, err := modelstore.Load(cmd.Context(), a.store.DB(), dataset, a.cfg.Search.Shards)
			if err != nil && !errors.Is(err, modelstore.ErrNotFound) {
				return fmt.Errorf("export: load model %q: %w", dataset, err)
			}
			if err != nil || !fresh {
				if model, err = modelstore.Reindex(cmd.Context(), a.store.DB(), a.store, dataset, a.cfg.Search.Shards); err != nil {
					return err
				}
			}
			if err := modelstore.SaveFile(out, model.Index); err != nil {
				return err
			}
			a.logger.Info("Exported model", zap.String("dataset", dataset), zap.String("out", out), zap.Int64("scn", model.SCN))
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s (%d documents) to %s\n", dataset, model.Index.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&out, "out", "", "Output file")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.close()
			if port > 0 {
				a.cfg.HTTP.Port = port
			}
			a.logger.Info("Starting simsearch API server",
				zap.String("env", a.env),
				zap.Int("http_port", a.cfg.HTTP.Port),
				zap.String("dsn", a.cfg.Database.DSN),
				zap.Int("shards", a.cfg.Search.Shards),
			)
			srv, err := server.New(a.store, a.cfg, a.logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, a.cfg.HTTP)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port, overrides http.port")
	return cmd
}

// Virtual table names created by the sql command.
const (
	searchTable = "vec_search"
	adminTable  = "vec_admin"
)

// attachVirtualTables registers the vec and vec_admin modules and creates
// their tables. Registration happens on a single connection; scans then need a
// second one for the nested store queries.
func (a *app) attachVirtualTables(ctx context.Context) error {
	if engine.IsMemory(a.cfg.Database.DSN) {
		return fmt.Errorf("sql: virtual tables need a file database, got %q", a.cfg.Database.DSN)
	}
	db := a.store.DB()
	db.SetMaxOpenConns(1)
	if err := vec.Register(db); err != nil {
		return err
	}
	if err := vecadmin.Register(db, a.cfg.Search.Shards); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	ddl := []string{
		fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec(doc_id, shards=%d)", searchTable, a.cfg.Search.Shards),
		fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec_admin(op)", adminTable),
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sql: %s: %w", stmt, err)
		}
	}
	db.SetMaxOpenConns(4)
	return nil
}

func newSQLCmd(g *globalFlags) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Run a query with vec_search, vec_admin, vec_cosine and vec_l2 available",
		Example: `  simsearch sql --query "SELECT doc_id, match_score FROM vec_search WHERE dataset_id = 'news' AND doc_id MATCH '0:1' AND k = 5"
  simsearch sql --query "SELECT op FROM vec_admin WHERE op MATCH '*'"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.attachVirtualTables(cmd.Context()); err != nil {
				return err
			}
			rows, err := a.store.DB().QueryContext(cmd.Context(), query)
			if err != nil {
				return err
			}
			defer rows.Close()
			cols, err := rows.Columns()
			if err != nil {
				return err
			}
			values := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			out := cmd.OutOrStdout()
			count := 0
			for rows.Next() {
				if err := rows.Scan(ptrs...); err != nil {
					return err
				}
				for i, v := range values {
					if i > 0 {
						fmt.Fprint(out, "\t")
					}
					fmt.Fprint(out, formatValue(v))
				}
				fmt.Fprintln(out)
				count++
			}
			if err := rows.Err(); err != nil {
				return err
			}
			a.logger.Debug("Query complete", zap.String("query", query), zap.Int("rows", count))
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "SQL query")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return fmt.Sprintf("%.6f", x)
	default:
		return fmt.Sprint(x)
	}
}
