package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/aodh/internal/client"
	"github.com/roach88/aodh/internal/config"
	"github.com/roach88/aodh/internal/store"
)

// RootOptions holds global flags for all commands and the state resolved
// from them before a command runs.
type RootOptions struct {
	Verbose    bool
	Debug      bool
	Format     string // "table" | "json" | "yaml"
	ConfigPath string
	DBPath     string

	Endpoint  string
	Token     string
	UserID    string
	ProjectID string
	Roles     string

	// Resolved in PersistentPreRunE.
	Config *config.Config
	Logger *log.Logger

	getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatTable, FormatJSON, FormatYAML}

// NewRootCommand creates the root command for the aodh CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Getenv)
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	opts := &RootOptions{getenv: getenv}

	cmd := &cobra.Command{
		Use:   "aodh",
		Short: "Command-line client for the alarm service",
		Long: `Query alarms and alarm history with a boolean filter language,
and keep frequently used filters as named saved queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.Debug, "debug", false, "log HTTP requests to stderr")
	flags.StringVar(&opts.Format, "format", "", "output format (table|json|yaml)")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default $XDG_CONFIG_HOME/aodh/config.yaml)")
	flags.StringVar(&opts.DBPath, "db", "", "saved-query database path")
	flags.StringVar(&opts.Endpoint, "os-endpoint", "", "alarm service endpoint (env AODH_ENDPOINT)")
	flags.StringVar(&opts.Token, "os-token", "", "authentication token (env OS_AUTH_TOKEN)")
	flags.StringVar(&opts.UserID, "os-user-id", "", "user ID for noauth mode (env AODH_USER_ID)")
	flags.StringVar(&opts.ProjectID, "os-project-id", "", "project ID for noauth mode (env AODH_PROJECT_ID)")
	flags.StringVar(&opts.Roles, "os-roles", "", "roles for noauth mode (env AODH_ROLES)")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewAlarmCommand(opts))
	cmd.AddCommand(NewAlarmHistoryCommand(opts))

	return cmd
}

// resolve loads the configuration and sets up logging. Config errors are
// reported here because no command has run yet.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		Path:   o.ConfigPath,
		Getenv: o.getenv,
		Overrides: config.Config{
			Endpoint:  o.Endpoint,
			Token:     o.Token,
			UserID:    o.UserID,
			ProjectID: o.ProjectID,
			Roles:     o.Roles,
			Database:  o.DBPath,
			Format:    o.Format,
		},
	})
	if err != nil {
		if !isValidFormat(o.Format) {
			o.Format = FormatTable
		}
		return fail(o.formatter(cmd), err)
	}
	o.Config = cfg
	o.Format = cfg.Format

	o.Logger = log.New()
	o.Logger.SetOutput(cmd.ErrOrStderr())
	o.Logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000 MST",
		DisableColors:   true,
	})
	o.Logger.SetLevel(log.WarnLevel)
	if o.Debug {
		o.Logger.SetLevel(log.DebugLevel)
	}
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// newClient builds a service client from the resolved config.
func (o *RootOptions) newClient() (*client.Client, error) {
	if o.Config.Endpoint == "" {
		return nil, &config.Error{
			Field:   "endpoint",
			Message: "no alarm service endpoint configured (use --os-endpoint or AODH_ENDPOINT)",
		}
	}
	return client.New(client.Options{
		Endpoint:  o.Config.Endpoint,
		Token:     o.Config.Token,
		UserID:    o.Config.UserID,
		ProjectID: o.Config.ProjectID,
		Roles:     o.Config.Roles,
		Timeout:   o.Config.Timeout(),
		Logger:    o.Logger,
	})
}

// openStore opens the saved-query database, creating its directory.
func (o *RootOptions) openStore() (*store.Store, error) {
	path := o.Config.Database
	if path == "" {
		path = config.DefaultDatabasePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &storeError{fmt.Errorf("creating database directory: %w", err)}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, &storeError{err}
	}
	return s, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// NotifyContext returns a copy of ctx that is canceled on SIGINT or SIGTERM,
// so in-flight requests stop when the process is asked to exit.
func NotifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Run executes the CLI with args and returns the process exit code. Errors
// not already reported by a command (flag parsing, unknown commands) are
// printed to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return run(ctx, NewRootCommand(), args, stdout, stderr)
}

func run(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	// Commands report their own failures; anything else is a usage error
	// from cobra.
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		err = WrapExitError(ExitCommandError, ErrCodeGeneric, err)
	}
	return GetExitCode(err)
}
