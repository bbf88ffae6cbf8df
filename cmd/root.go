package cmd

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	rootCmd, app := newRoot()
	defer func() { _ = app.Close() }()

	return rootCmd.Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd, _ := newRoot()
	return rootCmd
}

// newRoot builds the command tree. The store behind app opens on the first
// command that needs it; callers close app when done.
func newRoot() (*cobra.Command, *app) {
	app := &app{}
	rootCmd := &cobra.Command{
		Use:           "trafficcop",
		Short:         "Traffic Cop: session and cross-dimensional state coordination",
		Long:          "trafficcop manages user sessions, keeps state consistent across sessions and dimensions, resolves write conflicts and reports health metrics.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.open(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.user, "user", envOrDefault("TRAFFICCOP_USER", ""), "caller user id")
	rootCmd.PersistentFlags().StringVar(&app.tenant, "tenant", envOrDefault("TRAFFICCOP_TENANT", ""), "caller tenant")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSessionCmd(app),
		newStateCmd(app),
		newConflictCmd(app),
		newSyncCmd(app),
		newDimensionCmd(app),
		newWorkflowCmd(app),
		newHealthCmd(app),
	)

	return rootCmd, app
}
