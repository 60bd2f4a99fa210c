// Package commands implements the trendscope CLI.
package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/trendscope/cmd/trendscope/ui"
	"github.com/spherical-ai/trendscope/internal/config"
	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/internal/observability"
	"github.com/spherical-ai/trendscope/pkg/engine"
)

type rootOptions struct {
	cfgFile string
	verbose bool
	noColor bool
	jsonOut bool

	// engineOptions is used by tests to inject a scripted completer.
	engineOptions engine.Options
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "trendscope",
		Short: "Ask questions about trending videos",
		Long: `trendscope answers natural-language questions about trending videos.
Analytical questions are translated to SQL over the relational store, topical
questions are answered by similarity search, and compound questions use both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "show routing details and debug logs")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print machine-readable JSON")

	cmd.AddCommand(
		newAskCmd(opts),
		newSimilarCmd(opts),
		newStatsCmd(opts),
		newSQLCmd(opts),
		newSeedCmd(opts),
		newExamplesCmd(opts),
	)
	return cmd
}

// Execute runs the CLI with ctx, which is canceled on interrupt.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) ui(cmd *cobra.Command) *ui.UI {
	interactive := isTerminal(cmd.OutOrStdout()) && isTerminal(cmd.ErrOrStderr())
	return ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), o.jsonOut, o.noColor, interactive)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, exitf(ExitValidation, err)
	}
	return cfg, nil
}

func (o *rootOptions) logger(cmd *cobra.Command, cfg *config.Config) *observability.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      cmd.ErrOrStderr(),
		ServiceName: cfg.Observability.ServiceName,
	})
}

// openEngine loads configuration and builds a local engine.
func (o *rootOptions) openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	eopts := o.engineOptions
	if eopts.Logger == nil {
		eopts.Logger = o.logger(cmd, cfg)
	}
	e, err := engine.Build(cmd.Context(), cfg, eopts)
	if err != nil {
		return nil, exitf(ExitDependency, err)
	}
	return e, nil
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// kindExit maps an operation error to an exit code.
func kindExit(err error) error {
	if domain.IsKind(err, domain.ErrorKindInvalidQuery) {
		return exitf(ExitValidation, err)
	}
	return exitf(ExitDependency, err)
}
