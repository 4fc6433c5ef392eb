package commands

import (
	"fmt"
	"os"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive vpnqa shell",
		Long: "Launches a REPL that accepts vpnqa subcommands with completion and history. " +
			"Type 'help' for the list, 'exit' or Ctrl-D to leave.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := newShell()
			printShellBanner()
			if err := app.Start(); err != nil {
				return fmt.Errorf("shell: %w", err)
			}
			return nil
		},
	}
}

// newShell builds the console. The command tree is rebuilt for every
// line, so flag values never leak between commands.
func newShell() *console.Console {
	app := console.New("vpnqa")

	menu := app.ActiveMenu()
	menu.Prompt().Primary = func() string { return "vpnqa> " }
	menu.SetCommands(func() *cobra.Command {
		root := newRootCmd(false)
		root.AddCommand(exitCmd())
		root.CompletionOptions.HiddenDefaultCmd = true
		return root
	})

	return app
}

func exitCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "exit",
		Aliases: []string{"quit"},
		Short:   "Leave the interactive shell",
		Args:    cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			os.Exit(0)
		},
	}
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("vpnqa interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}
