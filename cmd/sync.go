package cmd

import (
	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func newSyncCmd(app *app) *cobra.Command {
	var (
		targets          []string
		keys             []string
		strategy         string
		scope            string
		dimension        string
		conflictStrategy string
	)

	cmd := &cobra.Command{
		Use:   "sync <source-session-id>",
		Short: "Synchronize keys between a session and its peers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.SynchronizeStatesCommand{
				SourceSessionID:  domain.SessionID(args[0]),
				TargetSessionIDs: sessionIDs(targets),
				Keys:             keys,
				Strategy:         domain.SyncStrategy(strategy),
				Scope:            domain.Scope(scope),
				Dimension:        domain.DimensionID(dimension),
				ConflictStrategy: domain.ConflictStrategy(conflictStrategy),
			})
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target session (repeatable)")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "key to synchronize (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", string(domain.SyncBidirectional), "push, pull or bidirectional")
	cmd.Flags().StringVar(&scope, "scope", "", "scope of the keys")
	cmd.Flags().StringVar(&dimension, "dimension", "", "dimension of the keys")
	cmd.Flags().StringVar(&conflictStrategy, "conflict-strategy", "", "override the configured conflict strategy")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
