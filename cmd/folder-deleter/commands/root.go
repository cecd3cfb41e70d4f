// Package commands implements the folder-deleter command line.
package commands

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/maruaican/Quick-Folder-Deleter/internal/config"
	"github.com/maruaican/Quick-Folder-Deleter/internal/exitcodes"
)

// ExitError carries the process exit code for err
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an Execute error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return exitcodes.RuntimeError
}

// CLI represents the folder-deleter command line
type CLI struct {
	rootCmd    *cobra.Command
	out        io.Writer
	errOut     io.Writer
	configPath string
}

// New creates the command tree writing normal output to out
func New(out, errOut io.Writer) *CLI {
	rootCmd := &cobra.Command{
		Use:           "folder-deleter",
		Short:         "Delete directory trees with live per-item progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	c := &CLI{
		rootCmd: rootCmd,
		out:     out,
		errOut:  errOut,
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.DefaultPath, "Path to configuration file")

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newDeleteCmd())
	rootCmd.AddCommand(c.newHistoryCmd())
	rootCmd.AddCommand(c.newTokenCmd())

	return c
}

// Execute runs the root command with the given context
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// loadConfig reads --config. The default location may be absent; an
// explicitly named file must exist.
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit := cmd.Flags().Changed("config")
	cfg, err := config.LoadOrDefault(c.configPath, explicit)
	if err != nil {
		return nil, withCode(exitcodes.InvalidConfig, err)
	}
	return cfg, nil
}
