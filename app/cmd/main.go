package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"legischat/app/agent"
	"legischat/app/filter"
	"legischat/app/pipeline"
	"legischat/app/server"
	"legischat/config"
	"legischat/model"
	"legischat/store"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatal("Error loading .env file: ", err)
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run serves until a shutdown signal or a server failure. Resources are
// released before it returns.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()
	index, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()

	embedder, err := model.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	chat, err := model.NewChat(cfg)
	if err != nil {
		return err
	}

	var counter agent.TokenCounter
	if tc, err := agent.NewTiktokenCounter(cfg.LLM.ChatModel); err != nil {
		slog.Warn("tiktoken unavailable, estimating tokens from length", "error", err)
	} else {
		counter = tc
	}

	assistant := agent.New(chat,
		agent.WithMemory(cfg.Retrieval.MemoryK),
		agent.WithTokenBudget(cfg.Retrieval.MaxContextTokens, counter),
	)
	p := pipeline.New(assistant, filter.New(cfg.Retrieval.FilenameHintFilter, nil), embedder, index, cfg.Retrieval.K, model.RetryPolicyFrom(cfg), nil)

	s := server.NewServer(cfg.ServerAddr, server.Options{
		Asker:          p,
		Sessions:       pipeline.NewRegistry(),
		RequestTimeout: cfg.RequestTimeout * 3, // one REQUEST_TIMEOUT per stage
		DataPath:       cfg.Loader.DataPath,
		Corpus:         cfg.Loader.Corpus,
	})

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	return s.RunUntil(sigch)
}
