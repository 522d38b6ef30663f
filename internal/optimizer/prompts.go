package optimizer

import (
	"fmt"
	"strings"
	"text/template"
)

// ─── Fallback values ──────────────────────────────────────────────────────────

const (
	FallbackGuide = "General prompt engineering guidance: state the task explicitly, " +
		"describe the expected output format, and include representative examples."
	FallbackPrompt          = "Please provide a clear and specific response to the user's request."
	FallbackEvaluationGuide = "General evaluation criteria: clarity and specificity, effectiveness " +
		"for the target use case, handling of edge cases, and maintainability."
	FallbackEvaluation = "Basic evaluation: The prompt appears functional but may need refinement."
)

// ─── Instruction templates ────────────────────────────────────────────────────

const guideTemplate = `Generate a detailed prompt engineering guide. The audience is {{.Role}}.

Include best practices, common patterns, and specific techniques that work well for {{.Role}}.
Focus on clarity, specificity, and effectiveness for this particular audience.
{{- if .BasicRequirements}}

The prompts this audience writes must satisfy these basic requirements:
{{.BasicRequirements}}
{{- end}}

Provide the guide in a structured format with examples.`

const generationTemplate = `{{if .Examples -}}
Based on these {{len .Examples}} examples of how I want my prompt to work:

{{range $i, $ex := .Examples}}{{if $i}}

{{end}}Example {{inc $i}}:
Input: {{$ex.Input}}
Output: {{$ex.Output}}{{end}}

Generate a prompt that could have generated the examples' outputs, and include a better set of examples.
{{- else -}}
No examples are available. Derive the prompt from the target audience and the requirements below.
{{- end}}

The target audience is {{.Role}}.
{{- if .BasicRequirements}}

Basic requirements:
{{.BasicRequirements}}
{{- end}}
{{- if .AdditionalRequirements}}

Additional requirements:
{{.AdditionalRequirements}}
{{- end}}

Provide:
1. A well-crafted prompt that would generate similar outputs
2. 3-5 additional high-quality examples that demonstrate the prompt's effectiveness
3. Brief explanation of the prompt's design principles

Format your response as:

PROMPT:
[Your generated prompt here]

ADDITIONAL_EXAMPLES:
[New examples in the same input/output format]

DESIGN_PRINCIPLES:
[Brief explanation]`

const evaluationGuideTemplate = `Generate a detailed prompt evaluation guide. The audience is {{.Role}}.

Include criteria for evaluating prompts specifically for {{.Role}}, such as:
- Clarity and specificity
- Effectiveness for the target use case
- Potential edge cases
- Performance considerations
- Maintainability and scalability

Provide a structured evaluation framework.`

const evaluationTemplate = `Evaluate this prompt for {{.Role}}.

PROMPT TO EVALUATE:
{{.CurrentPrompt}}

EVALUATION GUIDE:
{{.EvaluationGuide}}

ORIGINAL EXAMPLES IT SHOULD HANDLE:
{{examples .Examples}}

Provide a detailed evaluation including:
1. Strengths of the current prompt
2. Potential weaknesses or limitations
3. How well it addresses the target audience ({{.Role}})
4. Specific areas for improvement
5. Overall score (1-10) with justification

Present each point as a numbered item. Be thorough and constructive in your evaluation.`

const improvementTemplate = `Based on the evaluation, generate 3 improved alternative prompts for {{.Role}}.

CURRENT PROMPT:
{{.CurrentPrompt}}

EVALUATION FEEDBACK:
{{feedback .Evaluations}}

ORIGINAL EXAMPLES TO HANDLE:
{{examples .Examples}}
{{- if .AdditionalRequirements}}

ADDITIONAL REQUIREMENTS:
{{.AdditionalRequirements}}
{{- end}}

Generate 3 distinct improved versions that address the identified weaknesses while maintaining the strengths. Each should:
1. Be specifically tailored for {{.Role}}
2. Address the feedback from the evaluation
3. Maintain or improve upon the original prompt's capabilities
4. Have a clear improvement focus (e.g., clarity, specificity, edge case handling)

Format as:

ALTERNATIVE 1: [Focus: specific improvement area]
[Improved prompt 1]

ALTERNATIVE 2: [Focus: specific improvement area]
[Improved prompt 2]

ALTERNATIVE 3: [Focus: specific improvement area]
[Improved prompt 3]

Write only the prompt text under each header.`

var instructionFuncs = template.FuncMap{
	"inc":      func(i int) int { return i + 1 },
	"examples": FormatExamples,
	"feedback": func(evaluations []string) string {
		if len(evaluations) == 0 {
			return "No evaluation available"
		}
		return strings.Join(evaluations, "\n\n")
	},
}

var instructions = map[Stage]*template.Template{
	StageGuide:           template.Must(template.New("guide").Funcs(instructionFuncs).Parse(guideTemplate)),
	StagePrompt:          template.Must(template.New("prompt").Funcs(instructionFuncs).Parse(generationTemplate)),
	StageEvaluationGuide: template.Must(template.New("evaluation_guide").Funcs(instructionFuncs).Parse(evaluationGuideTemplate)),
	StageEvaluation:      template.Must(template.New("evaluation").Funcs(instructionFuncs).Parse(evaluationTemplate)),
	StageImprovement:     template.Must(template.New("improvement").Funcs(instructionFuncs).Parse(improvementTemplate)),
}

// RenderInstruction builds the model instruction for stage from s.
func RenderInstruction(stage Stage, s State) (string, error) {
	tmpl, ok := instructions[stage]
	if !ok {
		return "", fmt.Errorf("no instruction for stage %q", stage)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, s); err != nil {
		return "", fmt.Errorf("render %s instruction: %w", stage, err)
	}
	return b.String(), nil
}
