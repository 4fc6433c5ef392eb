// vpnqa runs the acceptance suites against an installed VPN client.
package main

import "github.com/dantte-lp/vpnqa/cmd/vpnqa/commands"

func main() {
	commands.Execute()
}
