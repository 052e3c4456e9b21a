package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaldlabs/skald-sub002/internal/engine"
	"github.com/skaldlabs/skald-sub002/internal/importer"
	"github.com/skaldlabs/skald-sub002/internal/queue"
)

var (
	importProject string
	importOrg     string
	importNoQueue bool
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Create memos from a directory of Markdown files",
	Long: `Walks a directory of Markdown files (an Obsidian vault works), creates one
plaintext memo per file and publishes it to the configured queue. Frontmatter
keys become memo metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		if importProject == "" {
			return fmt.Errorf("--project is required")
		}

		a, err := openApp(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		var publisher engine.MemoPublisher
		if !importNoQueue {
			p, err := queue.NewPublisher(ctx, cfg, a.db)
			if err != nil {
				return err
			}
			defer p.Close()
			publisher = p
		}

		res, err := importer.New(a.store, publisher, logger).ImportDir(ctx, importProject, importOrg, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	importCmd.Flags().StringVarP(&importProject, "project", "p", "", "project UUID")
	importCmd.Flags().StringVar(&importOrg, "organization", "", "organization UUID billed for the memos")
	importCmd.Flags().BoolVar(&importNoQueue, "no-queue", false, "create memos without publishing them")
	rootCmd.AddCommand(importCmd)
}
