package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/longmans/prompt-agent/internal/app"
	"github.com/longmans/prompt-agent/internal/optimizer"
)

type optimizeOptions struct {
	file         string
	role         string
	requirements string
	additional   string
	model        string
	examples     string
	examplesFile string
	jsonOut      bool
	summary      bool
	plain        bool
	quiet        bool
	dryRun       bool
	noHistory    bool
	timeout      time.Duration
}

func newOptimizeCmd(a *cliApp) *cobra.Command {
	o := &optimizeOptions{}
	cmd := &cobra.Command{
		Use:   "optimize [keyword...]",
		Short: "Run the optimization sequence for one request",
		Long: `Run the optimization sequence for one request.

The request comes from --file (YAML or JSON, "-" for stdin), from the flags, or
from a bare keyword such as "software developer" that selects a preset.

Examples are given as a JSON array or in text form:

  input:
  topic=rivers
  output:
  A short poem about rivers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := o.request(a, args)
			if err != nil {
				return err
			}
			return a.runOptimize(cmd.Context(), req, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.file, "file", "f", "", "request file (YAML or JSON), - for stdin")
	f.StringVar(&o.role, "role", "", "target audience of the prompt")
	f.StringVar(&o.requirements, "requirements", "", "basic requirements every prompt must meet")
	f.StringVar(&o.additional, "additional", "", "additional requirements")
	f.StringVarP(&o.model, "model", "m", "", "model type (provider); defaults to the configured default")
	f.StringVar(&o.examples, "examples", "", "examples as a JSON array or input:/output: text")
	f.StringVar(&o.examplesFile, "examples-file", "", "read examples from a file")
	f.BoolVar(&o.jsonOut, "json", false, "print the result as JSON")
	f.BoolVar(&o.summary, "summary", false, "print the shortened report")
	f.BoolVar(&o.plain, "plain", false, "print markdown without terminal rendering")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "do not report step progress on stderr")
	f.BoolVar(&o.dryRun, "dry-run", false, "validate and print the normalized request without calling the model")
	f.BoolVar(&o.noHistory, "no-history", false, "do not store the run in the history")
	f.DurationVar(&o.timeout, "timeout", 10*time.Minute, "overall time limit for the run")
	return cmd
}

// request assembles the request from the file, the flags and the positional
// keyword. Flags override file fields.
func (o *optimizeOptions) request(a *cliApp, args []string) (optimizer.Request, error) {
	var req optimizer.Request
	switch {
	case o.file != "":
		data, err := readInput(a.stdin, o.file)
		if err != nil {
			return req, err
		}
		if req, err = parseRequestFile(o.file, data); err != nil {
			return req, invalid(err)
		}
	case len(args) > 0:
		req = optimizer.FromKeyword(strings.Join(args, " "))
	}

	if o.role != "" {
		req.Role = o.role
	}
	if o.requirements != "" {
		req.BasicRequirements = o.requirements
	}
	if o.additional != "" {
		req.AdditionalRequirements = o.additional
	}
	if o.model != "" {
		req.ModelType = o.model
	}

	text := o.examples
	if o.examplesFile != "" {
		data, err := readInput(a.stdin, o.examplesFile)
		if err != nil {
			return req, err
		}
		text = string(data)
	}
	if strings.TrimSpace(text) != "" {
		examples, err := optimizer.ParseExamples(text)
		if err != nil {
			return req, invalid(err)
		}
		req.Examples = examples
	}

	if req.Role == "" && o.file == "" && len(args) == 0 {
		return req, invalidf("a role is required: pass --role, --file or a keyword")
	}
	return req, nil
}

func (a *cliApp) runOptimize(ctx context.Context, req optimizer.Request, o *optimizeOptions) error {
	ap, err := a.load(ctx, app.Options{NoAudit: true, NoHistory: o.noHistory || o.dryRun})
	if err != nil {
		return err
	}
	defer a.closeApp(ap)

	if o.dryRun {
		prepared, err := ap.Service.Prepare(req)
		if err != nil {
			return invalid(err)
		}
		return writeJSON(a.stdout, prepared)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var obs optimizer.Observer
	if !o.quiet {
		obs = progressObserver(a.stderr)
	}
	resp, err := ap.Service.Optimize(ctx, req, obs)
	if err != nil {
		if optimizer.IsValidation(err) {
			return invalid(err)
		}
		return err
	}

	if o.jsonOut {
		return writeJSON(a.stdout, resp)
	}
	report := optimizer.RenderReport(resp)
	if o.summary {
		report = optimizer.RenderSummary(resp)
	}
	return writeMarkdown(a.stdout, report, o.plain)
}

// progressObserver prints one line per finished step.
func progressObserver(w io.Writer) optimizer.Observer {
	return func(ev optimizer.StepEvent) {
		status := "ok"
		if ev.Fallback {
			status = "fallback"
			if ev.Err != nil {
				status += ": " + ev.Err.Error()
			}
		}
		fmt.Fprintf(w, "[%d/%d] %-16s %6s  %s\n", ev.Index, ev.Total, ev.Stage, ev.Duration.Round(time.Millisecond), status)
	}
}

// parseRequestFile decodes a YAML or JSON request. YAML is converted to JSON
// so both share the request decoder, including object example inputs.
func parseRequestFile(name string, data []byte) (optimizer.Request, error) {
	ext := strings.ToLower(filepath.Ext(name))
	trimmed := strings.TrimSpace(string(data))
	if ext == ".json" || strings.HasPrefix(trimmed, "{") {
		return optimizer.ParseRequest(data)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return optimizer.Request{}, fmt.Errorf("invalid YAML request: %w", err)
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return optimizer.Request{}, fmt.Errorf("request file must contain a mapping")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return optimizer.Request{}, fmt.Errorf("invalid YAML request: %w", err)
	}
	return optimizer.ParseRequest(body)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
