package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/vpnqa/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print vpnqa build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputFormat == formatTable {
				fmt.Fprintln(cmd.OutOrStdout(), appversion.Full("vpnqa"))
				return nil
			}
			return render(cmd.OutOrStdout(), outputFormat, appversion.Current(), nil)
		},
	}
}
