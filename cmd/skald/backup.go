package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skaldlabs/skald-sub002/internal/backup"
)

var (
	backupDir     string
	backupRestore string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot or restore the sqlite store",
	Long: `Writes a verified snapshot of the sqlite store and prunes old snapshots
with tiered retention. With --restore, replaces the store with the given
snapshot instead; stop the worker first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		if cfg.Database.Driver != "sqlite" {
			return fmt.Errorf("backup supports the sqlite driver only; use pg_dump for postgres")
		}

		if backupRestore != "" {
			if err := backup.Restore(ctx, backupRestore, cfg.Database.SQLitePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", backupRestore)
			return nil
		}

		dir := backupDir
		if dir == "" {
			dir = filepath.Join(filepath.Dir(cfg.Database.SQLitePath), "backups")
		}
		res, err := backup.Snapshot(ctx, backup.Config{
			DBPath:    cfg.Database.SQLitePath,
			Dir:       dir,
			Retention: backup.DefaultRetention(),
		}, logger)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "snapshot directory (default: <data dir>/backups)")
	backupCmd.Flags().StringVar(&backupRestore, "restore", "", "snapshot file to restore")
	rootCmd.AddCommand(backupCmd)
}
