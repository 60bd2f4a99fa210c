package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/trendscope/internal/ingest"
	"github.com/spherical-ai/trendscope/pkg/engine"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "seed <file.jsonl>",
		Short: "Load trending video records into the store and the vector index",
		Long: `Load newline-delimited JSON video records into the relational store and
embed them into the configured vector index. Existing videos are replaced.
Malformed lines are reported and skipped unless --strict is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.ui(cmd)
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return exitf(ExitValidation, fmt.Errorf("open input: %w", err))
			}
			defer f.Close()

			videos, err := ingest.ParseAll(f)
			if err != nil {
				if merr, ok := err.(*multierror.Error); ok {
					for _, e := range merr.Errors {
						out.Warning("%v", e)
					}
				}
				if strict || len(videos) == 0 {
					return exitf(ExitValidation, fmt.Errorf("parse %s: %w", args[0], err))
				}
			}
			out.Step("Seeding %d videos into %s", len(videos), cfg.Store.Path)

			bar := out.NewProgressBar(int64(len(videos)), "Indexing")
			eopts := root.engineOptions
			if eopts.Logger == nil {
				eopts.Logger = root.logger(cmd, cfg)
			}
			result, err := engine.Seed(cmd.Context(), cfg, videos, func(done, total int) {
				bar.Set(int64(done))
			}, eopts)
			bar.Finish()
			if err != nil {
				return exitf(ExitDependency, err)
			}

			if out.JSON() {
				return out.PrintJSON(map[string]any{
					"stored":      result.Stored,
					"indexed":     result.Indexed,
					"duration_ms": result.Duration.Milliseconds(),
				})
			}
			out.Success("Stored %d and indexed %d videos in %s", result.Stored, result.Indexed, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any line is malformed instead of skipping it")
	return cmd
}
