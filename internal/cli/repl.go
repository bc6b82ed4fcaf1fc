package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/nfrund/quickbridge"
	"github.com/nfrund/quickbridge/internal/config"
)

const historyFileName = ".quickbridge_history"

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive script session",
	Long: `Start a read-eval-print loop on a single persistent context.
Globals and declarations survive between lines. Exit with Ctrl-D or ".exit".`,
	Args: cobra.NoArgs,
	RunE: replHandler,
}

func replHandler(cmd *cobra.Command, args []string) error {
	cfg := config.New()

	rt, err := quickbridge.NewRuntime(
		quickbridge.WithMemoryLimit(cfg.MemoryLimit),
		quickbridge.WithMaxStackSize(cfg.MaxStackSize),
	)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer rt.Close()

	ctx, err := rt.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := historyFile()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer saveHistory(line, historyPath)

	fmt.Fprintln(cmd.OutOrStdout(), "quickbridge repl — Ctrl-D or .exit to quit")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}
		if input == ".exit" {
			return nil
		}
		line.AppendHistory(input)

		result, err := ctx.Eval(input)
		if err != nil {
			var exc *quickbridge.ScriptException
			if errors.As(err, &exc) {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", exc.Error())
				continue
			}
			return err
		}
		if err := printResult(cmd.OutOrStdout(), result, false); err != nil {
			return err
		}
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFileName)
}

func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

func init() {
	rootCmd.AddCommand(replCmd)
}
