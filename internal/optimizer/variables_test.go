package optimizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariables(t *testing.T) {
	assert.Equal(t, []string{"name", "topic"}, ExtractVariables("Hi {topic}, {name} and {topic} again"))
	assert.Empty(t, ExtractVariables("no placeholders {}"))
}

func TestValidatePrompt(t *testing.T) {
	tests := []struct {
		name          string
		prompt        string
		definitions   string
		wantPrompt    string
		wantUndefined []string
		wantErr       bool
	}{
		{
			name:        "all defined",
			prompt:      "Write about {topic} for {audience}.",
			definitions: "topic = Go\naudience=beginners\n\n",
			wantPrompt:  "Write about Go for beginners.",
		},
		{
			name:          "some undefined",
			prompt:        "Write about {topic} in {language}.",
			definitions:   "topic=Go",
			wantPrompt:    "Write about Go in {language}.",
			wantUndefined: []string{"language"},
		},
		{
			name:          "no definitions",
			prompt:        "{a} {b}",
			wantPrompt:    "{a} {b}",
			wantUndefined: []string{"a", "b"},
		},
		{name: "missing equals", prompt: "{a}", definitions: "a: 1", wantErr: true},
		{name: "empty value", prompt: "{a}", definitions: "a=", wantErr: true},
		{name: "empty key", prompt: "{a}", definitions: "=1", wantErr: true},
		{name: "empty prompt", prompt: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := ValidatePrompt(tt.prompt, tt.definitions)
			if tt.wantErr {
				var ve *RequestValidationError
				assert.True(t, errors.As(err, &ve))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrompt, report.Prompt)
			if tt.wantUndefined == nil {
				assert.Empty(t, report.Undefined)
				assert.True(t, report.Valid)
			} else {
				assert.Equal(t, tt.wantUndefined, report.Undefined)
				assert.False(t, report.Valid)
			}
		})
	}
}

func TestVariableHint(t *testing.T) {
	assert.Equal(t, "a=<value for a>\nb=<value for b>\n", VariableHint("{b} then {a}"))
	assert.Empty(t, VariableHint("plain"))
}
