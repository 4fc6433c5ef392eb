package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func matrixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Print the technology/protocol/obfuscation matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := matrix(cfg)
			if err != nil {
				return err
			}

			views := make([]scenarioView, 0, len(m))
			for _, s := range m {
				views = append(views, scenarioView{
					Name:       s.String(),
					Technology: string(s.Technology()),
					Protocol:   string(s.Protocol()),
					Obfuscated: s.Obfuscated(),
				})
			}

			return render(cmd.OutOrStdout(), outputFormat, views, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "SCENARIO\tTECHNOLOGY\tPROTOCOL\tOBFUSCATED")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Name, v.Technology, orDash(v.Protocol), yesNo(v.Obfuscated))
				}
			})
		},
	}
}
