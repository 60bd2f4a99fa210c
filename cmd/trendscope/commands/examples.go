package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical-ai/trendscope/internal/router"
)

func newExamplesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List sample questions with their expected route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.ui(cmd)
			examples := router.Examples()
			if out.JSON() {
				return out.PrintJSON(examples)
			}
			rows := make([][]string, len(examples))
			for i, ex := range examples {
				rows[i] = []string{string(ex.Kind), ex.Query, ex.Description}
			}
			out.Table([]string{"ROUTE", "QUESTION", "DESCRIPTION"}, rows)
			return nil
		},
	}
}
