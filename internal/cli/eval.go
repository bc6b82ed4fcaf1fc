package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/quickbridge"
	"github.com/nfrund/quickbridge/internal/config"
)

var evalJSONOutput bool

var evalCmd = &cobra.Command{
	Use:   "eval <source>",
	Short: "Evaluate a script expression and print the result",
	Long: `Evaluate a script expression in a fresh context and print the
completion value.

Examples:
  quickbridge eval "6 * 7"
  quickbridge eval "[1, 2, 3].map(x => x * x)" --json`,
	Args: cobra.ExactArgs(1),
	RunE: evalHandler,
}

func evalHandler(cmd *cobra.Command, args []string) error {
	cfg := config.New()

	rt, err := quickbridge.NewRuntime(
		quickbridge.WithMemoryLimit(cfg.MemoryLimit),
		quickbridge.WithMaxStackSize(cfg.MaxStackSize),
		quickbridge.WithRuntimeLimit(cfg.EvalTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer rt.Close()

	ctx, err := rt.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}

	result, err := ctx.Eval(args[0])
	if err != nil {
		var exc *quickbridge.ScriptException
		if errors.As(err, &exc) {
			fmt.Fprintf(os.Stderr, "script error: %s\n", exc.Error())
			os.Exit(1)
		}
		return err
	}

	return printResult(cmd.OutOrStdout(), result, evalJSONOutput)
}

func init() {
	evalCmd.Flags().BoolVar(&evalJSONOutput, "json", false, "print the result as JSON")
	rootCmd.AddCommand(evalCmd)
}
