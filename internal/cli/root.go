// Package cli implements the promptagent command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/app"
	"github.com/longmans/prompt-agent/internal/audit"
	"github.com/longmans/prompt-agent/internal/llm/adapter"
	"github.com/longmans/prompt-agent/internal/server"
)

// Exit codes returned through ExitError.
const (
	ExitFailure = 1
	ExitInvalid = 2
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

type cliApp struct {
	configPath string
	verbose    bool
	factory    adapter.Factory

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr, nil)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut, nil)
}

func newRootCommand(in io.Reader, out, errOut io.Writer, factory adapter.Factory) *cobra.Command {
	a := &cliApp{
		factory: factory,
		stdin:   in,
		stdout:  out,
		stderr:  errOut,
	}

	cmd := &cobra.Command{
		Use:           "promptagent",
		Short:         "Generate, evaluate and refine LLM prompts",
		Long:          "promptagent turns a role, requirements and input/output examples into an optimized prompt by chaining guide, draft, evaluation and improvement steps against a model provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       server.Version,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("PROMPTAGENT_CONFIG"), "path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newOptimizeCmd(a),
		newUsageCmd(a),
		newValidatePromptCmd(a),
		newParseExamplesCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// load builds the application components. One-shot commands log to stderr
// in console format and skip the audit file.
func (a *cliApp) load(ctx context.Context, opts app.Options) (*app.App, error) {
	opts.ConfigPath = a.configPath
	if opts.Factory == nil {
		opts.Factory = a.factory
	}
	if opts.Logger == nil {
		level := "warn"
		if a.verbose {
			level = "debug"
		}
		logger, err := audit.NewAppLogger(&audit.Config{LogLevel: level, Format: "console"})
		if err != nil {
			return nil, err
		}
		opts.Logger = logger
	}
	return app.New(ctx, opts)
}

func (a *cliApp) closeApp(ap *app.App) {
	if err := ap.Close(context.Background()); err != nil {
		ap.Logger.Debug("close failed", zap.Error(err))
	}
}

func invalid(err error) error {
	return &ExitError{Code: ExitInvalid, Err: err}
}

func invalidf(format string, args ...interface{}) error {
	return invalid(fmt.Errorf(format, args...))
}
