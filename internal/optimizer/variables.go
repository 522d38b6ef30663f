package optimizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholder = regexp.MustCompile(`\{([^}]+)\}`)

// ExtractVariables returns the sorted, de-duplicated {name} placeholders in
// prompt.
func ExtractVariables(prompt string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(prompt, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// VariableReport is the outcome of ValidatePrompt.
type VariableReport struct {
	Prompt    string   `json:"prompt"`
	Defined   []string `json:"defined"`
	Undefined []string `json:"undefined"`
	Valid     bool     `json:"valid"`
}

// ParseVariableDefinitions reads key=value lines. Blank lines are ignored.
func ParseVariableDefinitions(definitions string) (map[string]string, []string, error) {
	values := map[string]string{}
	var order []string
	for _, line := range strings.Split(definitions, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, nil, &RequestValidationError{
				Field:   "variables",
				Message: fmt.Sprintf("invalid definition %q: expected key=value", line),
			}
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, nil, &RequestValidationError{
				Field:   "variables",
				Message: fmt.Sprintf("invalid definition %q: key and value must not be empty", line),
			}
		}
		if _, dup := values[key]; !dup {
			order = append(order, key)
		}
		values[key] = value
	}
	return values, order, nil
}

// ValidatePrompt substitutes the key=value definitions into prompt and
// reports any placeholders left undefined.
func ValidatePrompt(prompt, definitions string) (VariableReport, error) {
	if strings.TrimSpace(prompt) == "" {
		return VariableReport{}, &RequestValidationError{Field: "prompt", Message: "prompt must not be empty"}
	}
	values, order, err := ParseVariableDefinitions(definitions)
	if err != nil {
		return VariableReport{}, err
	}

	out := prompt
	for _, key := range order {
		out = strings.ReplaceAll(out, "{"+key+"}", values[key])
	}
	undefined := ExtractVariables(out)
	sort.Strings(order)
	return VariableReport{
		Prompt:    out,
		Defined:   append([]string{}, order...),
		Undefined: append([]string{}, undefined...),
		Valid:     len(undefined) == 0,
	}, nil
}

// VariableHint renders a key=value template for the placeholders in prompt.
func VariableHint(prompt string) string {
	var b strings.Builder
	for _, name := range ExtractVariables(prompt) {
		fmt.Fprintf(&b, "%s=<value for %s>\n", name, name)
	}
	return b.String()
}
