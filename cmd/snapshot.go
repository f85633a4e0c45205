package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/census"
	"github.com/sells-group/census-map/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build the local pre-processed county table from the remote sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "snapshot")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := runSnapshot(ctx, env)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d counties (%s)\n", snap.ID, snap.Rows, cfg.Store.Driver) //nolint:errcheck
		return nil
	},
}

// runSnapshot builds the merged table, saves it with the default schema
// and reads it back to confirm the row count.
func runSnapshot(ctx context.Context, env *appEnv) (*store.Snapshot, error) {
	src := sources()
	table, err := env.loader().BuildTable(ctx, src)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: build table")
	}

	schema := census.DefaultSchema(env.Catalog.VariableNames())
	snap := &store.Snapshot{
		CountiesSource: src.CountiesURL,
		RUCCSource:     src.RUCCURL,
	}
	if err := env.Store.SaveSnapshot(ctx, snap, table, schema); err != nil {
		return nil, eris.Wrap(err, "snapshot: save")
	}

	back, err := env.Store.LoadTable(ctx, snap.ID)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: read back")
	}
	if back.Len() != table.Len() {
		return nil, eris.Errorf("snapshot: read back %d rows, wrote %d", back.Len(), table.Len())
	}

	zap.L().Info("snapshot saved",
		zap.String("snapshot_id", snap.ID),
		zap.Int("rows", snap.Rows),
		zap.Int("columns", schema.Len()),
	)
	return snap, nil
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
