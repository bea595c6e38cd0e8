package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/assistant"
	"github.com/xhad/askgov/pkg/config"
	"github.com/xhad/askgov/pkg/llm"
	"github.com/xhad/askgov/pkg/logger"
	"github.com/xhad/askgov/pkg/retrieval"
	"github.com/xhad/askgov/pkg/store"
)

var (
	configPath string
	verbose    bool
	ollamaURL  string
	storeType  string
	dataDir    string

	cfg *config.Config
)

// Overridden in tests.
var (
	newEmbedder = func(cfg *config.Config) (types.Embedder, error) {
		return llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:     cfg.Ollama.EmbedModel,
			BaseURL:   cfg.Ollama.BaseURL,
			Timeout:   cfg.Ollama.Timeout,
			Dimension: cfg.Retrieval.Dimension,
		})
	}
	newGenerator = func(cfg *config.Config) (types.Generator, error) {
		return llm.NewWithConfig(llm.ChatConfig{
			Model:          cfg.Ollama.ChatModel,
			Temperature:    cfg.LLM.Temperature,
			MaxTokens:      cfg.LLM.MaxTokens,
			SystemTemplate: cfg.LLM.SystemPrompt,
			BaseURL:        cfg.Ollama.BaseURL,
			Timeout:        cfg.Ollama.Timeout,
		})
	}
)

var rootCmd = &cobra.Command{
	Use:   "askgov",
	Short: "Government services knowledge base and voice assistant backend",
	Long: `askgov stores question/answer knowledge as embeddings and answers
questions by cosine similarity, preferring answers over restated questions.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
	flags.StringVar(&storeType, "store", "", "store backend (file, memory, sqlite, postgres)")
	flags.StringVar(&dataDir, "data-dir", "", "directory for file and sqlite stores")
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		return err
	}
	return nil
}

func loadConfig(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)

	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Command line flags win over file and environment
	if ollamaURL != "" {
		loaded.Ollama.BaseURL = ollamaURL
	}
	if storeType != "" {
		loaded.Store.Type = storeType
	}
	if dataDir != "" {
		loaded.Store.DataDir = dataDir
	}

	if errs := loaded.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	cfg = loaded
	return nil
}

// app is the wired set of services one command runs against.
type app struct {
	collection *store.Collection
	service    *retrieval.Service
	assistant  *assistant.Assistant
}

func newApp(ctx context.Context) (*app, error) {
	collection, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		collection.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	service := retrieval.New(embedder, collection, retrieval.Options{
		Threshold:       cfg.Retrieval.Threshold,
		TopK:            cfg.Retrieval.TopK,
		FallbackMessage: cfg.Retrieval.FallbackMessage,
	})

	var generator types.Generator
	if cfg.LLM.Enabled {
		generator, err = newGenerator(cfg)
		if err != nil {
			collection.Close()
			return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
	}

	return &app{
		collection: collection,
		service:    service,
		assistant:  assistant.New(service, generator, assistant.Config{TopK: cfg.Retrieval.TopK}),
	}, nil
}

func (a *app) Close() error {
	return a.collection.Close()
}
