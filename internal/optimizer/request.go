package optimizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the caller-facing input of one optimization run.
type Request struct {
	Role                   string    `json:"role"`
	BasicRequirements      string    `json:"basic_requirements,omitempty"`
	Examples               []Example `json:"examples,omitempty"`
	AdditionalRequirements string    `json:"additional_requirements,omitempty"`
	ModelType              string    `json:"model_type,omitempty"`
}

type preset struct {
	keywords []string
	request  Request
}

var presets = []preset{
	{
		keywords: []string{"developer", "programming", "code", "software"},
		request: Request{
			Role: "software developers",
			Examples: []Example{
				{Input: `{"task":"Write a function"}`, Output: "def example_function():"},
				{Input: `{"task":"Create a class"}`, Output: "class ExampleClass:"},
			},
		},
	},
	{
		keywords: []string{"writer", "author", "content", "writing"},
		request: Request{
			Role: "content writers",
			Examples: []Example{
				{Input: `{"task":"Write an article"}`, Output: "Here's a compelling article..."},
				{Input: `{"task":"Create a blog post"}`, Output: "Welcome to our blog..."},
			},
		},
	},
}

// FromKeyword expands a bare keyword into a request. Known keywords select a
// preset with examples; any other text becomes the role.
func FromKeyword(text string) Request {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, p := range presets {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				req := p.request
				req.Examples = append([]Example(nil), p.request.Examples...)
				return req
			}
		}
	}
	return Request{Role: text}
}

// ParseRequest decodes a request body: a JSON object, a JSON string or plain
// text keyword shorthand.
func ParseRequest(body []byte) (Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Request{}, &RequestValidationError{Field: "body", Message: "request body is empty"}
	}

	switch trimmed[0] {
	case '{':
		var req Request
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return Request{}, &RequestValidationError{Field: "body", Message: fmt.Sprintf("malformed JSON request: %v", err)}
		}
		return req, nil
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return Request{}, &RequestValidationError{Field: "body", Message: fmt.Sprintf("malformed JSON string: %v", err)}
		}
		return FromKeyword(text), nil
	case '[':
		return Request{}, &RequestValidationError{Field: "body", Message: "request must be a JSON object"}
	default:
		return FromKeyword(string(trimmed)), nil
	}
}

// Normalize trims free-text fields and fills the default model type.
func (r Request) Normalize(defaultModel string) Request {
	out := Request{
		Role:                   strings.TrimSpace(r.Role),
		BasicRequirements:      strings.TrimSpace(r.BasicRequirements),
		AdditionalRequirements: strings.TrimSpace(r.AdditionalRequirements),
		ModelType:              strings.ToLower(strings.TrimSpace(r.ModelType)),
		Examples:               append([]Example(nil), r.Examples...),
	}
	if out.ModelType == "" {
		out.ModelType = strings.ToLower(defaultModel)
	}
	return out
}

// Validate checks a normalized request. supported lists the model types
// that may be requested.
func (r Request) Validate(supported []string) error {
	if strings.TrimSpace(r.Role) == "" {
		return &RequestValidationError{Field: "role", Message: "role must be a non-empty string"}
	}
	for i, ex := range r.Examples {
		if strings.TrimSpace(ex.Input) == "" || strings.TrimSpace(ex.Output) == "" {
			return &RequestValidationError{
				Field:   fmt.Sprintf("examples[%d]", i+1),
				Message: fmt.Sprintf("example %d must have non-empty 'input' and 'output'", i+1),
			}
		}
	}
	if err := ValidateExamples(r.Examples); err != nil {
		return err
	}
	for _, m := range supported {
		if r.ModelType == m {
			return nil
		}
	}
	list := "none configured"
	if len(supported) > 0 {
		list = strings.Join(supported, ", ")
	}
	return &RequestValidationError{
		Field:   "model_type",
		Message: fmt.Sprintf("unsupported model type %q (supported: %s)", r.ModelType, list),
	}
}

// UsageHelp describes the request format.
func UsageHelp(defaultModel string, supported []string) string {
	models := make([]string, 0, len(supported))
	for _, m := range supported {
		line := "- `" + m + "`"
		if m == defaultModel {
			line += " (default)"
		}
		models = append(models, line)
	}
	if len(models) == 0 {
		models = append(models, "- none configured")
	}

	return `# Prompt optimizer

Send a JSON object with the following fields:

` + "```json" + `
{
    "role": "target audience, e.g. 'software developers', 'book authors', 'customer support reps'",
    "basic_requirements": "what every generated prompt must do (optional)",
    "examples": [
        {"input": "{\"field\": \"value 1\"}", "output": "expected output 1"},
        {"input": "{\"field\": \"value 2\"}", "output": "expected output 2"}
    ],
    "model_type": "model provider to use",
    "additional_requirements": "extra constraints (optional)"
}
` + "```" + `

Example inputs may also be JSON objects; all inputs must use the same field names.

## Model types

` + strings.Join(models, "\n") + `

## Quick start

Send a bare keyword such as "software developer" or "content writer" to run with a preset role and examples.

## Example: software development prompt

` + "```json" + `
{
    "role": "software developers",
    "model_type": "openai",
    "examples": [
        {
            "input": {"task": "Write a function to calculate fibonacci numbers"},
            "output": "def fibonacci(n):\n    if n <= 1:\n        return n\n    return fibonacci(n-1) + fibonacci(n-2)"
        },
        {
            "input": {"task": "Create a REST API endpoint"},
            "output": "@app.route('/api/users', methods=['GET'])\ndef get_users():\n    return jsonify(users)"
        }
    ],
    "additional_requirements": "Focus on clean, maintainable code"
}
` + "```" + `

## Example: customer support prompt

` + "```json" + `
{
    "role": "customer support representatives",
    "model_type": "gemini",
    "examples": [
        {
            "input": {"complaint": "Customer complains about delayed delivery"},
            "output": "I sincerely apologize for the delay. Let me check your order status immediately."
        }
    ]
}
` + "```" + `
`
}
