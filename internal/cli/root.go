package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/quickbridge/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "quickbridge",
	Short: "QuickBridge CLI tool",
	Long: `QuickBridge embeds the QuickJS engine in a Go process and bridges
values, functions and errors between the two.

Available commands:
  eval       Evaluate a script expression and print the result
  run        Run a registered or on-disk script through the script service
  repl       Start an interactive script session
  version    Print version information

Use "quickbridge [command] --help" for more information about a specific command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.New()
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
