package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"legischat/app/agent"
	"legischat/config"
	"legischat/loader/service"
	"legischat/model"
	"legischat/store"
	"legischat/textnorm"
)

var (
	reset   bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "loader",
	Short: "Index the legal corpus for retrieval",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		return config.LoadEnv()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest new documents, or every document with --reset",
		RunE:  runIngest,
	}
	ingestCmd.Flags().BoolVar(&reset, "reset", false, "Clear the index and ingest the whole corpus")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest new documents, then keep ingesting files added to the corpus",
		RunE:  runWatch,
	}

	normalizeCmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rename corpus files to their normalized names",
		RunE:  runNormalize,
	}

	rootCmd.AddCommand(ingestCmd, watchCmd, normalizeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newService wires the ingestion pipeline. The returned close releases the index.
func newService(ctx context.Context) (*service.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	index, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeIndex := func() {
		if err := index.Close(); err != nil {
			log.Printf("error closing index: %v\n", err)
		}
	}

	embedder, err := model.NewEmbedder(cfg)
	if err != nil {
		closeIndex()
		return nil, nil, err
	}
	summarizer, err := model.NewSummarizer(cfg)
	if err != nil {
		closeIndex()
		return nil, nil, err
	}

	// Summarize is the only capability the loader uses, so the summarizer
	// also stands in for the chat completer.
	assistant := agent.New(summarizer)
	normalizer := textnorm.Normalizer{StripAccents: cfg.StripAccents}
	svc := service.New(cfg.Loader, index, embedder, assistant, normalizer, model.RetryPolicyFrom(cfg))
	return svc, closeIndex, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, closeIndex, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer closeIndex()

	report, err := svc.Run(cmd.Context(), reset)
	fmt.Printf("documents: %d, skipped: %d, ingested: %d, chunks: %d, written: %d, failed: %d, rolled back: %d, fallbacks: %d, took %s\n",
		report.Documents, report.Skipped, report.Ingested, report.Chunks, report.Written, report.Failed, report.RolledBack, report.Fallbacks, report.Duration)
	for _, dir := range report.MissingDirs {
		fmt.Printf("missing directory: %s\n", dir)
	}
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, closeIndex, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer closeIndex()

	err = svc.Watch(cmd.Context())
	if errors.Is(err, context.Canceled) {
		log.Println("Received shutdown signal, watcher stopped")
		return nil
	}
	return err
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	normalizer := textnorm.Normalizer{StripAccents: cfg.StripAccents}

	dirs := make([]string, 0, len(cfg.Loader.Corpus))
	for dir := range cfg.Loader.Corpus {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	total := 0
	for _, dir := range dirs {
		path := filepath.Join(cfg.Loader.DataPath, dir)
		n, err := normalizer.RenameInDirectory(path, slog.Default())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Warn("[NORMALIZE] directory not found", "dir", path)
				continue
			}
			return err
		}
		total += n
	}
	fmt.Printf("renamed %d files\n", total)
	return nil
}
