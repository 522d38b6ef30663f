package optimizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var supportedModels = []string{"gemini", "openai"}

func TestParseRequest(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		req, err := ParseRequest([]byte(`{
			"role": "software developers",
			"basic_requirements": "Python only",
			"examples": [{"input": {"function_name": "fib"}, "output": "def fib(n): ..."}],
			"model_type": "OpenAI"
		}`))
		require.NoError(t, err)
		assert.Equal(t, "software developers", req.Role)
		assert.Equal(t, "Python only", req.BasicRequirements)
		assert.Equal(t, `{"function_name":"fib"}`, req.Examples[0].Input)
		assert.Equal(t, "OpenAI", req.ModelType)
	})

	t.Run("bare keyword", func(t *testing.T) {
		req, err := ParseRequest([]byte("I am a software developer"))
		require.NoError(t, err)
		assert.Equal(t, "software developers", req.Role)
		assert.Len(t, req.Examples, 2)
		assert.NoError(t, ValidateExamples(req.Examples))
	})

	t.Run("json string keyword", func(t *testing.T) {
		req, err := ParseRequest([]byte(`"content writer"`))
		require.NoError(t, err)
		assert.Equal(t, "content writers", req.Role)
	})

	t.Run("free text becomes role", func(t *testing.T) {
		req, err := ParseRequest([]byte("  customer support reps "))
		require.NoError(t, err)
		assert.Equal(t, Request{Role: "customer support reps"}, req)
	})

	t.Run("errors", func(t *testing.T) {
		for _, body := range []string{"", "   ", `{"role": `, `["a"]`} {
			_, err := ParseRequest([]byte(body))
			var ve *RequestValidationError
			assert.True(t, errors.As(err, &ve), "body %q: %v", body, err)
		}
	})
}

func TestFromKeywordCopiesPresetExamples(t *testing.T) {
	a := FromKeyword("code")
	a.Examples[0].Output = "changed"
	b := FromKeyword("code")
	assert.Equal(t, "def example_function():", b.Examples[0].Output)
}

func TestNormalize(t *testing.T) {
	req := Request{Role: "  writers ", ModelType: " OpenAI ", AdditionalRequirements: " short \n"}.Normalize("gemini")
	assert.Equal(t, "writers", req.Role)
	assert.Equal(t, "openai", req.ModelType)
	assert.Equal(t, "short", req.AdditionalRequirements)

	assert.Equal(t, "gemini", Request{Role: "x"}.Normalize("Gemini").ModelType)
}

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Role:      "software developers",
		ModelType: "gemini",
		Examples:  []Example{{Input: `{"a": 1}`, Output: "x"}},
	}

	tests := []struct {
		name      string
		mutate    func(r *Request)
		wantField string
	}{
		{name: "valid", mutate: func(r *Request) {}},
		{name: "no examples", mutate: func(r *Request) { r.Examples = nil }},
		{name: "missing role", mutate: func(r *Request) { r.Role = " " }, wantField: "role"},
		{name: "blank output", mutate: func(r *Request) { r.Examples[0].Output = "" }, wantField: "examples[1]"},
		{
			name: "inconsistent keys",
			mutate: func(r *Request) {
				r.Examples = append(r.Examples, Example{Input: `{"b": 1}`, Output: "y"})
			},
			wantField: "examples[2].input",
		},
		{name: "unsupported model", mutate: func(r *Request) { r.ModelType = "cohere" }, wantField: "model_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.Examples = append([]Example(nil), valid.Examples...)
			tt.mutate(&r)

			err := r.Validate(supportedModels)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *RequestValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestRequestValidateUnsupportedModelListsSupported(t *testing.T) {
	err := Request{Role: "x", ModelType: "cohere"}.Validate(supportedModels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini, openai")

	err = Request{Role: "x", ModelType: "gemini"}.Validate(nil)
	assert.Contains(t, err.Error(), "none configured")
}

func TestUsageHelp(t *testing.T) {
	help := UsageHelp("gemini", supportedModels)
	assert.Contains(t, help, "`gemini` (default)")
	assert.Contains(t, help, "`openai`")
	assert.Contains(t, help, "software developers")
	assert.Contains(t, help, "customer support representatives")
}
