package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/trendscope/internal/domain"
	"github.com/spherical-ai/trendscope/pkg/engine"
)

var errSemanticDisabled = errors.New("semantic agent is disabled")

func newSimilarCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "similar <videoId>",
		Short: "List videos similar to an indexed video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.ui(cmd)
			e, err := root.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.Semantic == nil {
				return exitf(ExitDependency, errSemanticDisabled)
			}

			rows, err := e.Semantic.FindSimilar(cmd.Context(), args[0], limit)
			if err != nil {
				return kindExit(err)
			}
			if out.JSON() {
				return out.PrintJSON(rows)
			}
			out.Section(fmt.Sprintf("Videos similar to %s", args[0]))
			out.Rows([]string{"video_id", "title", "channel_title", "category_name", "score"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of results (default from config)")
	return cmd
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the categories, countries and languages in the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.ui(cmd)
			var stats domain.Statistics
			if remote != "" {
				s, err := engine.NewClient(engine.ClientConfig{BaseURL: remote}).Stats(cmd.Context())
				if err != nil {
					return exitf(ExitDependency, fmt.Errorf("remote request failed: %w", err))
				}
				stats = *s
			} else {
				e, err := root.openEngine(cmd)
				if err != nil {
					return err
				}
				defer e.Close()
				if e.Semantic == nil {
					return exitf(ExitDependency, errSemanticDisabled)
				}
				if stats, err = e.Semantic.Statistics(cmd.Context()); err != nil {
					return kindExit(err)
				}
			}

			if out.JSON() {
				return out.PrintJSON(stats)
			}
			out.Section("Vector index")
			out.KeyValue("documents", domain.FormatCount(stats.TotalDocuments))
			out.KeyValue("categories", join(stats.Categories))
			out.KeyValue("countries", join(stats.Countries))
			out.KeyValue("languages", join(stats.Languages))
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a trendscope-api server")
	return cmd
}

func join(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
