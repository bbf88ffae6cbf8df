package cmd

import (
	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func newConflictCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflict",
		Short: "Inspect and resolve state conflicts",
	}

	cmd.AddCommand(
		newConflictListCmd(app),
		newConflictResolveCmd(app),
	)

	return cmd
}

func newConflictListCmd(app *app) *cobra.Command {
	var (
		status string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conflicts (pending by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetStateConflictsQuery{
				Status: domain.ConflictStatus(status),
				All:    all,
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending or resolved")
	cmd.Flags().BoolVar(&all, "all", false, "list every conflict regardless of status")

	return cmd
}

func newConflictResolveCmd(app *app) *cobra.Command {
	var (
		addr      addressFlags
		sessionID string
		strategy  string
	)

	cmd := &cobra.Command{
		Use:   "resolve [conflict-id]",
		Short: "Resolve a conflict by id, or the latest pending conflict on a key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := application.ResolveConflictCommand{
				SessionID: domain.SessionID(sessionID),
				Key:       addr.key,
				Scope:     domain.Scope(addr.scope),
				Dimension: domain.DimensionID(addr.dimension),
				Strategy:  domain.ConflictStrategy(strategy),
			}
			if len(args) == 1 {
				req.ConflictID = domain.ConflictID(args[0])
			}
			return app.execute(cmd, req)
		},
	}
	addr.bind(cmd)
	cmd.Flags().StringVar(&sessionID, "session", "", "session whose view of --key is resolved")
	cmd.Flags().StringVar(&strategy, "strategy", string(domain.StrategyOverride), "merge, override, preserve or conflict")

	return cmd
}
