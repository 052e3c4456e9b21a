package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaldlabs/skald-sub002/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Apply or roll back schema migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		a, err := openApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		mgr, err := a.migrations()
		if err != nil {
			return err
		}

		action := "up"
		if len(args) == 1 {
			action = args[0]
		}
		switch action {
		case "up":
			err = mgr.Up(ctx)
		case "down":
			err = mgr.Down(ctx)
		}
		if err != nil {
			return err
		}

		version, err := mgr.Version(ctx)
		if errors.Is(err, storage.ErrNoMigration) {
			version, err = 0, nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (latest %d)\n", version, mgr.Latest())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
