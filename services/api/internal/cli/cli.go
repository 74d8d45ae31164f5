// Package cli implements portfolioctl, the operator command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
	"portfoliohub/services/api/internal/app"
)

// Opener connects to the data store. The returned func releases it.
type Opener func(dsn string) (store.Store, func(), error)

// OpenGorm opens Postgres through GORM; opening runs the schema migration.
func OpenGorm(dsn string) (store.Store, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, errors.New("database URL required (set DATABASE_URL or --database-url)")
	}
	st, err := store.NewGormStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

const (
	databaseURLFlag = "database-url"
	emailFlag       = "email"
	passwordFlag    = "password"
	nameFlag        = "name"
	roleFlag        = "role"
	typeFlag        = "type"
	descriptionFlag = "description"
)

// NewRootCommand builds the command tree. open is called lazily by each
// subcommand.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenGorm
	}
	var dsn string
	root := &cobra.Command{
		Use:           "portfolioctl",
		Short:         "Operator tooling for the portfolio backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, databaseURLFlag, os.Getenv("DATABASE_URL"),
		"Postgres connection string (defaults to DATABASE_URL)")

	env := &environment{
		open: func() (store.Store, func(), error) { return open(dsn) },
	}
	root.AddCommand(newMigrateCommand(env))
	root.AddCommand(newCreateAdminCommand(env))
	root.AddCommand(newSettingsCommand(env))
	return root
}

type environment struct {
	open func() (store.Store, func(), error)
}

// application wires an App around st. Sessions are never issued from the
// CLI, so the token stores are throwaway.
func (e *environment) application(st store.Store) (*app.App, error) {
	keys, err := store.GenerateJWTKeys("portfolioctl")
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	sessions, err := store.NewJWTSessionStore(keys, time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		return nil, err
	}
	return app.New(app.Config{
		Store:         st,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
	})
}

func (e *environment) withApp(fn func(*app.App) error) error {
	st, closeStore, err := e.open()
	if err != nil {
		return err
	}
	defer closeStore()
	a, err := e.application(st)
	if err != nil {
		return err
	}
	return fn(a)
}

func newMigrateCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeStore, err := env.open()
			if err != nil {
				return err
			}
			closeStore()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newCreateAdminCommand(env *environment) *cobra.Command {
	flags := map[string]cobraflags.Flag{
		emailFlag:    &cobraflags.StringFlag{Name: emailFlag, Usage: "Login email (required)"},
		passwordFlag: &cobraflags.StringFlag{Name: passwordFlag, Usage: "Initial password (required)"},
		nameFlag:     &cobraflags.StringFlag{Name: nameFlag, Value: "Administrator", Usage: "Display name"},
		roleFlag: &cobraflags.StringFlag{
			Name:  roleFlag,
			Value: string(domain.RoleSuperAdmin),
			Usage: "Role of the new account",
		},
	}
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified staff account",
		Long: `Create an active, email-verified account with a staff role.

Examples:
  portfolioctl create-admin --email owner@example.com --password 's3cret-Pass'
  portfolioctl create-admin --email ops@example.com --password 's3cret-Pass' --role ADMIN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := flags[emailFlag].GetString()
			password := flags[passwordFlag].GetString()
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			role := domain.UserRole(strings.ToUpper(strings.TrimSpace(flags[roleFlag].GetString())))
			return env.withApp(func(a *app.App) error {
				user, err := a.CreateStaffUser(cmd.Context(), email, flags[nameFlag].GetString(), password, role)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Email, user.Role, user.ID)
				return nil
			})
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func newSettingsCommand(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change site settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withApp(func(a *app.App) error {
				settings, err := a.AllSettings()
				if err != nil {
					return err
				}
				return printSettings(cmd.OutOrStdout(), settings)
			})
		},
	})

	setFlags := map[string]cobraflags.Flag{
		typeFlag: &cobraflags.StringFlag{
			Name:  typeFlag,
			Value: string(domain.SettingString),
			Usage: "Value type (STRING, NUMBER, BOOLEAN, JSON)",
		},
		descriptionFlag: &cobraflags.StringFlag{Name: descriptionFlag, Usage: "Free-form description"},
	}
	var public bool
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Create or replace a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := app.SettingInput{
				Key:         args[0],
				Value:       args[1],
				Type:        domain.SettingType(strings.ToUpper(setFlags[typeFlag].GetString())),
				Description: setFlags[descriptionFlag].GetString(),
				IsPublic:    public,
			}
			return env.withApp(func(a *app.App) error {
				s, err := a.SaveSetting(in)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", s.Key, s.Value)
				return nil
			})
		},
	}
	cobraflags.RegisterMap(set, setFlags)
	set.Flags().BoolVar(&public, "public", false, "Expose the setting on the public settings endpoint")
	cmd.AddCommand(set)
	return cmd
}

func printSettings(w io.Writer, settings []domain.SiteSetting) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tPUBLIC\tVALUE")
	for _, s := range settings {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", s.Key, s.Type, s.IsPublic, s.Value)
	}
	return tw.Flush()
}

// describe flattens validation errors into a single operator-facing line.
func describe(err error) error {
	var verr *app.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("invalid %s: %s", verr.Field, verr.Message)
	}
	return err
}

// Execute runs the root command with signal-aware ctx.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := util.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	root := NewRootCommand(nil)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}
