package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/longmans/prompt-agent/internal/optimizer"
)

func newValidatePromptCmd(a *cliApp) *cobra.Command {
	var (
		prompt     string
		promptFile string
		vars       []string
		varsFile   string
		hint       bool
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "validate-prompt",
		Short: "Substitute {variables} into a prompt and report undefined ones",
		Long: `Substitute {variables} into a prompt and report undefined ones.

Definitions are key=value pairs, given with --var or one per line in --vars-file.
Exits with status 2 when a placeholder is left undefined.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptFile != "" {
				data, err := readInput(a.stdin, promptFile)
				if err != nil {
					return err
				}
				prompt = string(data)
			}

			if hint {
				if strings.TrimSpace(prompt) == "" {
					return invalidf("a prompt is required: pass --prompt or --prompt-file")
				}
				fmt.Fprint(a.stdout, optimizer.VariableHint(prompt))
				return nil
			}

			definitions := strings.Join(vars, "\n")
			if varsFile != "" {
				data, err := readInput(a.stdin, varsFile)
				if err != nil {
					return err
				}
				definitions += "\n" + string(data)
			}

			report, err := optimizer.ValidatePrompt(prompt, definitions)
			if err != nil {
				return invalid(err)
			}
			if jsonOut {
				if err := writeJSON(a.stdout, report); err != nil {
					return err
				}
			} else {
				printReport(a, report)
			}
			if !report.Valid {
				return invalidf("undefined variables: %s", strings.Join(report.Undefined, ", "))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&prompt, "prompt", "p", "", "prompt text")
	f.StringVar(&promptFile, "prompt-file", "", "read the prompt from a file, - for stdin")
	f.StringArrayVar(&vars, "var", nil, "variable definition key=value (repeatable)")
	f.StringVar(&varsFile, "vars-file", "", "file of key=value lines")
	f.BoolVar(&hint, "hint", false, "print a key=value template for the prompt's variables")
	f.BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func printReport(a *cliApp, r optimizer.VariableReport) {
	fmt.Fprintf(a.stdout, "Defined:   %s\n", listOrNone(r.Defined))
	fmt.Fprintf(a.stdout, "Undefined: %s\n\n", listOrNone(r.Undefined))
	fmt.Fprintln(a.stdout, r.Prompt)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func newParseExamplesCmd(a *cliApp) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "parse-examples",
		Short: "Parse and check examples given as a JSON array or input:/output: text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = "-"
			}
			data, err := readInput(a.stdin, file)
			if err != nil {
				return err
			}
			examples, err := optimizer.ParseExamples(string(data))
			if err != nil {
				return invalid(err)
			}
			if err := optimizer.ValidateExamples(examples); err != nil {
				return invalid(err)
			}
			if examples == nil {
				examples = []optimizer.Example{}
			}
			return writeJSON(a.stdout, examples)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "examples file (default stdin)")
	return cmd
}
