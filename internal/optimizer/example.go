package optimizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Example is one input/output pair the generated prompt should reproduce.
// Input is conventionally a JSON object serialized to text.
type Example struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// UnmarshalJSON accepts string values as-is and re-serializes any other
// JSON value (usually an object) to compact text.
func (e *Example) UnmarshalJSON(data []byte) error {
	var raw struct {
		Input  json.RawMessage `json:"input"`
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if e.Input, err = rawText(raw.Input); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if e.Output, err = rawText(raw.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

func rawText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateExamples checks that every example input is a JSON object and that
// all inputs share the key set of the first one.
func ValidateExamples(examples []Example) error {
	var reference []string
	for i, ex := range examples {
		keys, err := inputKeys(ex.Input)
		if err != nil {
			return &ParseError{Index: i + 1, Message: "input is not a JSON object", Err: err}
		}
		if i == 0 {
			reference = keys
			continue
		}
		if missing, extra := diffKeys(reference, keys); len(missing) > 0 || len(extra) > 0 {
			return &RequestValidationError{
				Field: fmt.Sprintf("examples[%d].input", i+1),
				Message: fmt.Sprintf(
					"example %d field names %v do not match example 1 field names %v (missing: %v, extra: %v)",
					i+1, keys, reference, missing, extra),
			}
		}
	}
	return nil
}

// inputKeys returns the sorted top-level keys of a JSON object.
func inputKeys(input string) ([]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(input), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("null is not an object")
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func diffKeys(reference, keys []string) (missing, extra []string) {
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k] = true
	}
	want := make(map[string]bool, len(reference))
	for _, k := range reference {
		want[k] = true
		if !have[k] {
			missing = append(missing, k)
		}
	}
	for _, k := range keys {
		if !want[k] {
			extra = append(extra, k)
		}
	}
	return missing, extra
}

// ParseExamples reads examples either from a JSON array or from the plain
// text form:
//
//	input:
//	key=value
//	output: expected text
//	more expected text
//
// Lines under input: that are not key=value pairs are collected under the
// "text" key. An example is emitted once it has both an input and an output.
func ParseExamples(text string) ([]Example, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if strings.HasPrefix(text, "[") {
		var examples []Example
		if err := json.Unmarshal([]byte(text), &examples); err != nil {
			return nil, &ParseError{Message: "examples are not a valid JSON array", Err: err}
		}
		return examples, nil
	}
	return parseTextExamples(text)
}

type textExample struct {
	input     map[string]string
	keys      []string
	output    []string
	hasOutput bool
}

func (t *textExample) set(key, value string) {
	if _, ok := t.input[key]; !ok {
		t.keys = append(t.keys, key)
		t.input[key] = value
		return
	}
	if key == "text" {
		t.input[key] += "\n" + value
		return
	}
	t.input[key] = value
}

func (t *textExample) complete() bool {
	return t != nil && len(t.input) > 0 && t.hasOutput && strings.TrimSpace(strings.Join(t.output, "\n")) != ""
}

func (t *textExample) example() (Example, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return Example{}, err
		}
		vb, err := json.Marshal(t.input[k])
		if err != nil {
			return Example{}, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return Example{Input: buf.String(), Output: strings.TrimSpace(strings.Join(t.output, "\n"))}, nil
}

func parseTextExamples(text string) ([]Example, error) {
	var (
		examples []Example
		current  *textExample
	)
	flush := func() error {
		if current.complete() {
			ex, err := current.example()
			if err != nil {
				return err
			}
			examples = append(examples, ex)
		}
		current = nil
		return nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "input:"):
			if err := flush(); err != nil {
				return nil, err
			}
			current = &textExample{input: map[string]string{}}
			if rest := strings.TrimSpace(trimmed[len("input:"):]); rest != "" {
				current.addInputLine(rest)
			}
		case current == nil:
			continue
		case strings.HasPrefix(lower, "output:"):
			current.hasOutput = true
			if rest := strings.TrimSpace(trimmed[len("output:"):]); rest != "" {
				current.output = append(current.output, rest)
			}
		case current.hasOutput:
			current.output = append(current.output, strings.TrimRight(line, " \t\r"))
		case trimmed != "":
			current.addInputLine(trimmed)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(examples) == 0 {
		return nil, &ParseError{Message: "no complete input/output examples found"}
	}
	return examples, nil
}

func (t *textExample) addInputLine(line string) {
	if key, value, ok := strings.Cut(line, "="); ok && strings.TrimSpace(key) != "" && !strings.ContainsAny(strings.TrimSpace(key), " \t") {
		t.set(strings.TrimSpace(key), strings.TrimSpace(value))
		return
	}
	t.set("text", line)
}

// FormatExamples renders examples the way they are embedded in instructions.
func FormatExamples(examples []Example) string {
	if len(examples) == 0 {
		return "No examples provided"
	}
	parts := make([]string, 0, len(examples))
	for _, ex := range examples {
		parts = append(parts, fmt.Sprintf("Input: %s\nOutput: %s", ex.Input, ex.Output))
	}
	return strings.Join(parts, "\n\n")
}
