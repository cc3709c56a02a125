package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/config"
	"github.com/xkilldash9x/pagecheck/internal/driver"
	"github.com/xkilldash9x/pagecheck/internal/observability"
	"github.com/xkilldash9x/pagecheck/internal/plugins"
)

// newValidateCmd creates the `validate` command, which checks a script without launching a browser.
func newValidateCmd() *cobra.Command {
	var batchPath string

	validateCmd := &cobra.Command{
		Use:   "validate <script>",
		Short: "Checks a script (and optionally a batch) against the act schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return validateScript(cmd.OutOrStdout(), cfg, args[0], batchPath)
		},
	}
	validateCmd.Flags().StringVarP(&batchPath, "batch", "b", "", "batch file to check alongside the script")
	return validateCmd
}

func validateScript(out io.Writer, cfg *config.Config, scriptPath, batchPath string) error {
	script, err := driver.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	registry := plugins.NewDefaultRegistry(observability.GetLogger())
	validator := command.NewValidator(cfg.Browser.EngineNames(), registry)

	problems := validator.CheckScript(script)
	printProblems(out, scriptPath, problems)
	scriptErr := command.Err(command.ErrInvalidScript, problems)

	if batchPath == "" {
		return scriptErr
	}
	batch, err := driver.LoadBatch(batchPath)
	if err != nil {
		return err
	}
	batchProblems := validator.CheckBatch(batch)
	printProblems(out, batchPath, batchProblems)
	if scriptErr != nil {
		return scriptErr
	}
	return command.Err(command.ErrInvalidBatch, batchProblems)
}

func printProblems(out io.Writer, path string, problems []command.Problem) {
	if len(problems) == 0 {
		fmt.Fprintf(out, "%s: valid\n", path)
		return
	}
	fmt.Fprintf(out, "%s: %d problem(s)\n", path, len(problems))
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
}
