package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Show the current connection, routing and interface state",
		Long:  "Takes one fresh snapshot with the configured probes. Nothing is changed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Retry.AttemptTimeout)
			defer cancel()

			p := newHarness(cfg, nil, logger).prober

			conn := p.Connectivity(ctx)
			v := probeView{
				State:     conn.State.String(),
				Reachable: conn.Reachable,
				Table:     p.Table(),
			}
			if conn.Tunnel != nil {
				v.Tunnel = conn.Tunnel.Name
			}

			var errs []string
			if conn.Err != nil {
				errs = append(errs, conn.Err.Error())
			}

			snap, err := p.Routing(ctx)
			if err != nil {
				errs = append(errs, err.Error())
			}
			v.Fwmark = snap.FwmarkRule
			v.Rules = snap.Rules
			for _, r := range snap.TableRoutes {
				v.Routes = append(v.Routes, strings.TrimSpace(r.Dst+" dev "+r.Dev))
			}

			links, err := p.Interfaces(ctx)
			if err != nil {
				errs = append(errs, err.Error())
			}
			for _, l := range links {
				v.Interfaces = append(v.Interfaces, interfaceView{Index: l.Index, Name: l.Name, Type: l.Type, Up: l.Up})
			}
			v.Error = strings.Join(errs, "; ")

			return render(cmd.OutOrStdout(), outputFormat, v, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "State:\t%s\n", v.State)
				fmt.Fprintf(w, "Tunnel:\t%s\n", orDash(v.Tunnel))
				fmt.Fprintf(w, "Reachable:\t%s\n", yesNo(v.Reachable))
				fmt.Fprintf(w, "Table:\t%d\n", v.Table)
				fmt.Fprintf(w, "Fwmark Rule:\t%s\n", yesNo(v.Fwmark))
				for _, r := range v.Rules {
					fmt.Fprintf(w, "Rule:\t%s\n", r)
				}
				for _, r := range v.Routes {
					fmt.Fprintf(w, "Route:\t%s\n", r)
				}
				for _, l := range v.Interfaces {
					fmt.Fprintf(w, "Interface:\t%d %s (%s, up=%s)\n", l.Index, l.Name, l.Type, yesNo(l.Up))
				}
				if v.Error != "" {
					fmt.Fprintf(w, "Error:\t%s\n", v.Error)
				}
			})
		},
	}
}
