package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/quickbridge/internal/config"
	"github.com/nfrund/quickbridge/script"
)

var (
	runJSONOutput bool
	runTimeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a registered or on-disk script through the script service",
	Long: `Run a script through the script service. The argument is either the
name of a script in the scripts directory (without extension) or a path to
a .js file.

Examples:
  quickbridge run jobs/cleanup
  quickbridge run ./local.js --timeout 10s`,
	Args: cobra.ExactArgs(1),
	RunE: runHandler,
}

func runHandler(cmd *cobra.Command, args []string) error {
	cfg := config.New()

	svc, err := script.NewService(script.Dependencies{
		Registry: script.NewRegistry(cfg.ScriptsDir),
		Limits: script.Limits{
			MaxExecutionTime: cfg.EvalTimeout,
			MaxMemoryBytes:   int64(cfg.MemoryLimit),
			MaxStackBytes:    int64(cfg.MaxStackSize),
		},
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		return err
	}
	defer svc.Shutdown(cmd.Context())

	if err := svc.Initialize(cmd.Context(), false); err != nil {
		return err
	}

	target := args[0]
	var output *script.ScriptOutput
	if strings.HasSuffix(target, ".js") {
		source, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("failed to read script file: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(target), ".js")
		output, err = svc.RunSource(cmd.Context(), name, string(source), nil)
		if err != nil {
			return err
		}
	} else {
		output, err = svc.Run(cmd.Context(), script.ExecutionRequest{
			ScriptName: target,
			Timeout:    runTimeout,
		})
		if err != nil {
			return err
		}
	}

	return printResult(cmd.OutOrStdout(), output.Result, runJSONOutput)
}

func init() {
	runCmd.Flags().BoolVar(&runJSONOutput, "json", false, "print the result as JSON")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "override the script's execution timeout")
	rootCmd.AddCommand(runCmd)
}
