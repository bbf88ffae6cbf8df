package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/symphainy/trafficcop/internal/application"
	"github.com/symphainy/trafficcop/internal/domain"
)

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions and their state",
	}

	cmd.AddCommand(
		newSessionCreateCmd(app),
		newSessionValidateCmd(app),
		newSessionGetCmd(app),
		newSessionUpdateCmd(app),
		newSessionTerminateCmd(app),
		newSessionHealthCmd(app),
		newSessionListCmd(app),
		newSessionSummaryCmd(app),
		newSessionEventsCmd(app),
		newSessionTransitionCmd(app, "pause", "Pause a session; writes are rejected until resumed", domain.SessionStatusPaused),
		newSessionTransitionCmd(app, "resume", "Resume a paused session", domain.SessionStatusActive),
		newSessionExtendCmd(app),
		newSessionSweepCmd(app),
	)

	return cmd
}

func newSessionCreateCmd(app *app) *cobra.Command {
	var (
		owner      string
		dimensions []string
		scope      string
		priority   int
		ttl        time.Duration
		metadata   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.CreateSessionCommand{
				OwnerUserID: owner,
				Dimensions:  dimensionIDs(dimensions),
				Scope:       domain.Scope(scope),
				Priority:    priority,
				TTL:         ttl,
				Metadata:    parseMetadata(metadata),
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (defaults to --user)")
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "dimension the session participates in (repeatable)")
	cmd.Flags().StringVar(&scope, "scope", "", "default scope for writes: local, shared, global or temp")
	cmd.Flags().IntVar(&priority, "priority", 0, "session priority")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime (defaults to the configured session TTL)")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata key=value; values are parsed as JSON when possible")

	return cmd
}

func newSessionValidateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <session-id>",
		Short: "Check whether a session is usable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.ValidateSessionQuery{SessionID: domain.SessionID(args[0])})
		},
	}
}

func newSessionGetCmd(app *app) *cobra.Command {
	var addr addressFlags

	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Read one key, or every entry the session references",
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

	return cmd
}

func newSessionUpdateCmd(app *app) *cobra.Command {
	var (
		addr            addressFlags
		value           string
		priority        int
		expectedVersion int64
		metadata        map[string]string
	)

	cmd := &cobra.Command{
		Use:   "update <session-id>",
		Short: "Write one key through a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.UpdateSessionStateCommand{
				SessionID:       domain.SessionID(args[0]),
				Key:             addr.key,
				Value:           parseValue(value),
				Scope:           domain.Scope(addr.scope),
				Dimension:       domain.DimensionID(addr.dimension),
				Priority:        priority,
				ExpectedVersion: expectedVersion,
				Metadata:        parseMetadata(metadata),
			})
		},
	}
	addr.bind(cmd)
	cmd.Flags().StringVar(&value, "value", "", "value to write; parsed as JSON when possible")
	cmd.Flags().IntVar(&priority, "priority", 0, "write priority (defaults to the session priority)")
	cmd.Flags().Int64Var(&expectedVersion, "expected-version", 0, "reject the write unless the stored version matches")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata key=value")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newSessionTerminateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <session-id>",
		Short: "Terminate a session and release its temp state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.TerminateSessionCommand{SessionID: domain.SessionID(args[0])})
		},
	}
}

func newSessionHealthCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health <session-id>",
		Short: "Show session activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.GetSessionHealthQuery{SessionID: domain.SessionID(args[0])})
		},
	}
}

func newSessionListCmd(app *app) *cobra.Command {
	var owner, tenant, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.ListSessionsQuery{
				OwnerUserID: owner,
				Tenant:      tenant,
				Status:      domain.SessionStatus(status),
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only sessions owned by this user")
	cmd.Flags().StringVar(&tenant, "for-tenant", "", "only sessions of this tenant")
	cmd.Flags().StringVar(&status, "status", "", "only sessions in this status")

	return cmd
}

func newSessionSummaryCmd(app *app) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize a tenant's sessions (defaults to --tenant)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.execute(cmd, application.GetTenantSummaryQuery{Tenant: tenant})
		},
	}
	cmd.Flags().StringVar(&tenant, "for-tenant", "", "tenant to summarize")

	return cmd
}

func newSessionEventsCmd(app *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events <session-id>",
		Short: "Show the latest orchestration events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.ListSessionEventsQuery{SessionID: domain.SessionID(args[0]), Limit: limit})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", application.DefaultEventLimit, "maximum number of events")

	return cmd
}

func newSessionTransitionCmd(app *app, use, short string, to domain.SessionStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.TransitionSessionCommand{SessionID: domain.SessionID(args[0]), To: to})
		},
	}
}

func newSessionExtendCmd(app *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "extend <session-id>",
		Short: "Move a session's expiry forward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.execute(cmd, application.ExtendSessionCommand{SessionID: domain.SessionID(args[0]), TTL: ttl})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "new lifetime measured from now (defaults to the configured session TTL)")

	return cmd
}

func newSessionSweepCmd(app *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue sessions and evict stale temp state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !watch {
				return app.execute(cmd, application.SweepCommand{})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.logger.InfoContext(ctx, "sweeper running", slog.Duration("interval", app.engine.Settings().SweepInterval))
			return app.engine.Sweeper().Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep sweeping every sweep interval until interrupted")

	return cmd
}

// addressFlags locate one key: --key, --scope and --dimension.
type addressFlags struct {
	key       string
	scope     string
	dimension string
}

func (f *addressFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.key, "key", "", "state key")
	cmd.Flags().StringVar(&f.scope, "scope", "", "scope: local, shared, global or temp")
	cmd.Flags().StringVar(&f.dimension, "dimension", "", "dimension holding the key")
}
