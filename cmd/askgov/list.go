package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents grouped by type",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.service.List(ctx)
	if err != nil {
		return err
	}

	if listJSON {
		data, err := sonic.ConfigStd.MarshalIndent(groups, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(groups) == 0 {
		cmd.Println("Knowledge base is empty.")
		return nil
	}

	for _, g := range groups {
		cmd.Println(color.CyanString("%s (%d)", g.Type, g.Count))
		for _, item := range g.Items {
			line := strings.ReplaceAll(item.Content, "\n", " ")
			if len(item.Keywords) > 0 {
				line += color.HiBlackString("  [%s]", strings.Join(item.Keywords, ", "))
			}
			cmd.Printf("  %s  %s\n", item.ID, line)
		}
	}
	return nil
}
