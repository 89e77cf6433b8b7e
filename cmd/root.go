package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Adda-Baaj/feedsmith/internal/config"
	"github.com/Adda-Baaj/feedsmith/internal/logger"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit statuses other than the generic 1.
const exitPortInUse = 2

// exitError carries the process exit status for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error onto a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "feedsmith",
		Short:         "Incremental RSS feeds for listing sites without one",
		Long:          "feedsmith crawls the newest pages of book and magazine listings, keeps a local cache of what it has seen and writes RSS 2.0 feeds plus a Markdown run log.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default ./feedsmith.yaml or the XDG config dir)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newGenerateCmd(opts),
		newServeCmd(opts),
		newInspectCmd(),
		newCacheCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feedsmith %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// runtime is what most commands need after flag parsing.
type runtime struct {
	cfg     *config.Config
	cfgPath string
	log     logger.Logger
}

func (o *rootOptions) load() (*runtime, error) {
	cfg, used, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, cfgPath: used, log: log}, nil
}

func (r *runtime) close() { _ = r.log.Sync() }

// Execute runs the CLI and exits with the command's status.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// SetVersionInfo is called from main with values injected at build time.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
