package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/askgov/internal/models"
	"github.com/xhad/askgov/pkg/processor"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.md>",
	Short: "Import question/answer entries from a knowledge markdown file",
	Long: `Parses a knowledge file and stores each entry as a question document and
an answer document sharing the entry keywords.

  ## 章节
  ### 关键词: 身份证, 户口
  #### 问题 1: 如何办理身份证？
  **回答:**
  请携带户口本前往派出所办理。`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	entries := processor.ParseMarkdown(string(data))
	return ingestEntries(cmd, entries)
}

// ingestEntries stores entries with a progress bar and prints a summary.
func ingestEntries(cmd *cobra.Command, entries []models.KnowledgeEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("no question/answer entries found, check the file format")
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := getProgressBar(cmd.ErrOrStderr(), len(entries)*2, "Storing knowledge...")
	report, err := a.service.IngestEntries(ctx, entries, func(int) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("stored %d documents before failing: %w", report.Added, err)
	}

	cmd.Println(color.GreenString("✓ Imported %d entries (%d documents)", report.Entries, report.Added))
	return nil
}
