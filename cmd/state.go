package cmd

import (
	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func newStateCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Share, inspect and delete state entries",
	}

	cmd.AddCommand(
		newStateShareCmd(app),
		newStateGetCmd(app),
		newStateListCmd(app),
		newStateDeleteCmd(app),
		newStateStatsCmd(app),
	)

	return cmd
}

func newStateShareCmd(app *app) *cobra.Command {
	var (
		key        string
		value      string
		scope      string
		priority   int
		dimensions []string
		sessions   []string
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "share <session-id>",
		Short: "Write one value into several dimensions and sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.ShareStateCommand{
				SessionID:  domain.SessionID(args[0]),
				Key:        key,
				Value:      parseValue(value),
				Dimensions: dimensionIDs(dimensions),
				Sessions:   sessionIDs(sessions),
				Scope:      domain.Scope(scope),
				Priority:   priority,
				Metadata:   parseMetadata(metadata),
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "state key")
	cmd.Flags().StringVar(&value, "value", "", "value to share; parsed as JSON when possible")
	cmd.Flags().StringVar(&scope, "scope", "", "scope: shared or global")
	cmd.Flags().IntVar(&priority, "priority", 0, "write priority")
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "target dimension (repeatable)")
	cmd.Flags().StringSliceVar(&sessions, "with", nil, "session that should see the value (repeatable)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata key=value")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newStateGetCmd(app *app) *cobra.Command {
	var addr addressFlags

	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Read one key through a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.GetSessionStateQuery{
				SessionID: domain.SessionID(args[0]),
				Key:       addr.key,
				Scope:     domain.Scope(addr.scope),
				Dimension: domain.DimensionID(addr.dimension),
			})
		},
	}
	addr.bind(cmd)
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newStateListCmd(app *app) *cobra.Command {
	var scope, dimension string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries visible across sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetSharedStatesQuery{
				Scope:     domain.Scope(scope),
				Dimension: domain.DimensionID(dimension),
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "only this scope (default every scope except local)")
	cmd.Flags().StringVar(&dimension, "dimension", "", "only this dimension")

	return cmd
}

func newStateDeleteCmd(app *app) *cobra.Command {
	var addr addressFlags

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete one key through a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.DeleteStateCommand{
				SessionID: domain.SessionID(args[0]),
				Key:       addr.key,
				Scope:     domain.Scope(addr.scope),
				Dimension: domain.DimensionID(addr.dimension),
			})
		},
	}
	addr.bind(cmd)
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newStateStatsCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count stored entries by scope and dimension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetStateStatsQuery{})
		},
	}
}
