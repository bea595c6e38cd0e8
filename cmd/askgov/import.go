package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/askgov/pkg/processor"
	"github.com/xhad/askgov/pkg/scraper"
)

var importDepth int

var importCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Fetch a published knowledge page and import its entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().IntVar(&importDepth, "depth", -1, "link depth to follow (default from config)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	url := args[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	depth := cfg.Scraper.MaxDepth
	if importDepth >= 0 {
		depth = importDepth
	}

	spinner := getSpinner(cmd.ErrOrStderr(), "Fetching knowledge pages...")
	var fetched int
	sc, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:   url,
		MaxDepth:  depth,
		RateLimit: cfg.Scraper.RateLimit,
		Timeout:   cfg.Scraper.Timeout,
		OnProgress: func(string) {
			fetched++
			spinner.Describe(color.CyanString("Fetching knowledge pages... (%d)", fetched))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	pages, err := sc.Scrape(context.Background(), url)
	_ = spinner.Finish()
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	cmd.Println(color.GreenString("✓ Fetched %d pages", len(pages)))

	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Content
	}

	return ingestEntries(cmd, processor.ParseMarkdown(strings.Join(parts, "\n")))
}
