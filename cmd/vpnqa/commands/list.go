package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/vpnqa/internal/suite"
)

func listCmd() *cobra.Command {
	var (
		suiteName   string
		casePattern string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the acceptance cases without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := cases(cfg)
			if err != nil {
				return err
			}
			selected, err := suite.Select(all, suiteName, casePattern)
			if err != nil {
				return err
			}

			views := make([]caseView, 0, len(selected))
			for _, c := range selected {
				v := caseView{
					Suite:   c.Suite,
					Name:    c.Name,
					Reruns:  c.Policy.MaxReruns,
					Timeout: c.Policy.AttemptTimeout.String(),
				}
				if !c.Scenario.IsZero() {
					v.Scenario = c.Scenario.String()
				}
				views = append(views, v)
			}

			return render(cmd.OutOrStdout(), outputFormat, views, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "SUITE\tCASE\tSCENARIO\tRERUNS\tTIMEOUT")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", v.Suite, v.Name, orDash(v.Scenario), v.Reruns, v.Timeout)
				}
			})
		},
	}

	cmd.Flags().StringVar(&suiteName, "suite", "", "list only this suite: connect, routing")
	cmd.Flags().StringVar(&casePattern, "case", "", "list only cases matching this regular expression")

	return cmd
}
