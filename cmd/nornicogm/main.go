// Package main provides the nornicogm CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/nornicogm/pkg/batchfile"
	"github.com/orneryd/nornicogm/pkg/config"
	"github.com/orneryd/nornicogm/pkg/executor"
	"github.com/orneryd/nornicogm/pkg/logging"
	"github.com/orneryd/nornicogm/pkg/mapper"
	"github.com/orneryd/nornicogm/pkg/pool"
	"github.com/orneryd/nornicogm/pkg/script"
	"github.com/orneryd/nornicogm/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nornicogm",
		Short: "nornicogm - object to graph mapper for Gremlin servers",
		Long: `nornicogm compiles batches of vertex and edge saves into a single
parameterized Gremlin script and sends it to a Gremlin Server, or to the
embedded development store.

Batches are described in YAML: entity types with their uniqueness policies,
then the vertices, edges and deletes to apply.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file (env overrides it)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nornicogm v%s (%s)\n", version, commit)
		},
	})

	// Compile command (dry run)
	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a batch file and print the script without sending it",
		RunE:  runCompile,
	}
	compileCmd.Flags().StringP("file", "f", "", "Batch file")
	compileCmd.Flags().Bool("interpolate", false, "Print the script with parameters inlined")
	_ = compileCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(compileCmd)

	// Apply command
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch file through the configured executor",
		RunE:  runApply,
	}
	applyCmd.Flags().StringP("file", "f", "", "Batch file")
	applyCmd.Flags().String("executor", "", "Executor kind (http, websocket, local)")
	applyCmd.Flags().String("url", "", "Gremlin Server URL")
	applyCmd.Flags().String("data-dir", "", "Data directory of the local executor")
	_ = applyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(applyCmd)

	// Init command
	initCmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter config and batch file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	return rootCmd
}

// loadConfig resolves the configuration: defaults, the --config file, the
// environment, then command flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	for flag, target := range map[string]*string{
		"executor": &cfg.Executor.Kind,
		"url":      &cfg.Executor.URL,
		"data-dir": &cfg.Executor.DataDir,
	} {
		if cmd.Flags().Lookup(flag) == nil {
			continue
		}
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*target = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Runtime.ApplyRuntime()
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := cfg.Logging.Logger("nornicogm")
	if err != nil {
		return nil, err
	}
	log.Debug("runtime configured",
		zap.String("memoryLimit", cfg.Runtime.MemoryLimitString()),
		zap.Int("gcPercent", cfg.Runtime.GCPercent),
		zap.Bool("pooling", pool.IsEnabled()))
	return log, nil
}

func sessionOptions(cfg *config.Config, log *zap.Logger) []mapper.SessionOption {
	return []mapper.SessionOption{
		mapper.WithLogger(log),
		mapper.WithGraphVariable(cfg.Mapper.GraphVariable),
		mapper.WithVariablePrefix(cfg.Mapper.VariablePrefix),
		mapper.WithAutoCommit(cfg.Mapper.AutoCommit),
	}
}

func loadBatch(cmd *cobra.Command) (*batchfile.Batch, error) {
	path, _ := cmd.Flags().GetString("file")
	doc, err := batchfile.Load(path)
	if err != nil {
		return nil, err
	}
	return batchfile.Compile(doc)
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	batch, err := loadBatch(cmd)
	if err != nil {
		return err
	}

	sess := mapper.NewSession(executor.NewRecorder(nil), batch.Registry(), sessionOptions(cfg, log)...)
	if _, err := batch.Queue(cmd.Context(), sess); err != nil {
		return err
	}

	text, params := sess.Pending()
	out := cmd.OutOrStdout()
	if interpolate, _ := cmd.Flags().GetBool("interpolate"); interpolate {
		fmt.Fprintln(out, script.Interpolate(text, params))
		return nil
	}
	fmt.Fprintln(out, text)
	fmt.Fprintln(out)
	return printParams(out, params)
}

func printParams(w io.Writer, params map[string]any) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		value, err := json.Marshal(params[name])
		if err != nil {
			return fmt.Errorf("encoding param %s: %w", name, err)
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, value)
	}
	return tw.Flush()
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	batch, err := loadBatch(cmd)
	if err != nil {
		return err
	}

	exec, closeExec, err := openExecutor(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeExec(); err != nil {
			log.Warn("closing executor", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("applying batch", zap.Stringer("config", cfg))
	sess := mapper.NewSession(exec, batch.Registry(), sessionOptions(cfg, log)...)
	items, err := batch.Queue(ctx, sess)
	if err != nil {
		return err
	}
	if _, err := sess.Send(ctx); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REF\tOP\tTYPE\tID")
	for _, it := range items {
		ref := it.Ref
		if ref == "" {
			ref = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", ref, it.Op, it.Entity.Type(), it.Entity.ID())
	}
	return tw.Flush()
}

// openExecutor builds the executor named by the config. The returned func
// releases it.
func openExecutor(cfg *config.Config, log *zap.Logger) (executor.Executor, func() error, error) {
	nop := func() error { return nil }
	ec := cfg.Executor

	switch ec.Kind {
	case config.ExecutorHTTP:
		exec, err := executor.NewHTTP(executor.HTTPOptions{
			URL:      ec.URL,
			Username: ec.Username,
			Password: ec.Password,
			Timeout:  ec.Timeout,
			Logger:   log,
		})
		return exec, nop, err

	case config.ExecutorWebSocket:
		exec, err := executor.NewWebSocket(executor.WebSocketOptions{
			URL:      ec.URL,
			Username: ec.Username,
			Password: ec.Password,
			Timeout:  ec.Timeout,
			Logger:   log,
		})
		if err != nil {
			return nil, nil, err
		}
		return exec, exec.Close, nil

	case config.ExecutorLocal:
		if ec.InMemory {
			engine := storage.NewMemoryEngine()
			return executor.NewLocal(engine, log), engine.Close, nil
		}
		if err := os.MkdirAll(ec.DataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:    ec.DataDir,
			SyncWrites: ec.SyncWrites,
			Logger:     logging.Badger(log),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening data directory: %w", err)
		}
		return executor.NewLocal(engine, log), engine.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown executor kind %q", ec.Kind)
}

const starterConfig = `# nornicogm configuration
executor:
  kind: local          # http, websocket or local
  url: http://localhost:8182/gremlin
  timeout: 30s
  data_dir: ./data

mapper:
  graph_variable: g
  variable_prefix: ogm_var
  auto_commit: true

logging:
  level: info
  # file: ./logs/nornicogm.log
`

const starterBatch = `types:
  - name: person
    fields:
      - {name: name, kind: string}
      - {name: age, kind: integer}
    unique: [name]
  - name: knows
    kind: edge
    label: knows
    unique_edge: true

vertices:
  - {ref: ada, type: person, data: {name: Ada Lovelace, age: 36}}
  - {ref: charles, type: person, data: {name: Charles Babbage}}

edges:
  - {type: knows, out: ada, in: charles}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"nornicogm.yaml", starterConfig},
		{"batch.yaml", starterBatch},
	}
	out := cmd.OutOrStdout()
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "skipped %s (exists)\n", path)
			continue
		}
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}
