package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// Diagnostics gathers product and kernel state as text for case evidence.
type Diagnostics struct {
	product *vpncli.Client
	ip      *vpncli.Runner
	table   int
}

// NewDiagnostics creates a Diagnostics collector.
func NewDiagnostics(product *vpncli.Client, ip *vpncli.Runner, table int) *Diagnostics {
	return &Diagnostics{product: product, ip: ip, table: table}
}

// Collect runs every read-only command and concatenates the output.
// Individual failures are recorded inline.
func (d *Diagnostics) Collect(ctx context.Context) string {
	t := strconv.Itoa(d.table)
	sections := []struct {
		title string
		run   func(context.Context) (vpncli.Result, error)
	}{
		{"status", d.product.Status},
		{"settings", d.product.Settings},
		{"ip rule", func(ctx context.Context) (vpncli.Result, error) { return d.ip.Run(ctx, "rule") }},
		{"ip route show table " + t, func(ctx context.Context) (vpncli.Result, error) {
			return d.ip.Run(ctx, "route", "show", "table", t)
		}},
		{"ip route", func(ctx context.Context) (vpncli.Result, error) { return d.ip.Run(ctx, "route") }},
	}

	var b strings.Builder
	for _, s := range sections {
		res, err := s.run(ctx)
		fmt.Fprintf(&b, "---- %s ----\n", s.title)
		b.WriteString(strings.TrimRight(res.Output(), "\n"))
		b.WriteByte('\n')
		if err != nil {
			fmt.Fprintf(&b, "(error: %v)\n", err)
		}
	}
	return b.String()
}
