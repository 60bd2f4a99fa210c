package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newSQLCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement>",
		Short: "Run a read-only SELECT against the relational store",
		Long: `Run a read-only SELECT against the videos table. The statement goes through
the same validation as generated SQL: one SELECT over the configured table,
with a LIMIT appended when missing.`,
		Example: `  trendscope sql "SELECT category_name, COUNT(*) AS n FROM videos GROUP BY category_name ORDER BY n DESC"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := root.ui(cmd)
			e, err := root.openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.Analytical == nil {
				return exitf(ExitDependency, errors.New("analytical agent is disabled"))
			}

			res, executed, err := e.Analytical.ExecuteSQL(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return kindExit(err)
			}
			if out.JSON() {
				return out.PrintJSON(map[string]any{"sql": executed, "columns": res.Columns, "rows": res.Rows})
			}
			out.Step("%s", executed)
			out.Rows(res.Columns, res.Rows)
			out.Info("%d rows", len(res.Rows))
			return nil
		},
	}
}
