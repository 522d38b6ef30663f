package optimizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/longmans/prompt-agent/internal/llm/budget"
)

const (
	summaryEvaluationLimit  = 500
	summaryAlternativeLimit = 300
)

// Response is the rendered result of a run.
type Response struct {
	RunID                  string        `json:"run_id,omitempty"`
	Role                   string        `json:"role"`
	BasicRequirements      string        `json:"basic_requirements"`
	AdditionalRequirements string        `json:"additional_requirements"`
	ModelType              string        `json:"model_type"`
	OriginalExamples       []Example     `json:"original_examples"`
	GeneratedPrompt        string        `json:"generated_prompt"`
	Evaluations            []string      `json:"evaluations"`
	AlternativePrompts     []string      `json:"alternative_prompts"`
	FinalRecommendation    string        `json:"final_recommendation"`
	Step                   Step          `json:"step"`
	Fallbacks              []Stage       `json:"fallbacks"`
	Usage                  *budget.Usage `json:"usage,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
}

// NewResponse converts a finished State. Slices are never nil so they
// serialize as empty arrays.
func NewResponse(s State) Response {
	return Response{
		Role:                   s.Role,
		BasicRequirements:      s.BasicRequirements,
		AdditionalRequirements: s.AdditionalRequirements,
		ModelType:              s.ModelType,
		OriginalExamples:       append([]Example{}, s.Examples...),
		GeneratedPrompt:        s.CurrentPrompt,
		Evaluations:            append([]string{}, s.Evaluations...),
		AlternativePrompts:     append([]string{}, s.AlternativePrompts...),
		FinalRecommendation:    s.FinalRecommendation,
		Step:                   s.Step,
		Fallbacks:              append([]Stage{}, s.Fallbacks...),
	}
}

// RenderReport renders the full markdown report.
func RenderReport(r Response) string {
	var b strings.Builder

	b.WriteString("# Prompt optimization report\n\n")
	fmt.Fprintf(&b, "- **Role:** %s\n", r.Role)
	fmt.Fprintf(&b, "- **Model:** %s\n", r.ModelType)
	fmt.Fprintf(&b, "- **Examples:** %d\n", len(r.OriginalExamples))
	if r.RunID != "" {
		fmt.Fprintf(&b, "- **Run:** %s\n", r.RunID)
	}
	if r.Usage != nil {
		fmt.Fprintf(&b, "- **Tokens:** %d in %d calls (est. $%.4f)\n", r.Usage.TotalTokens(), r.Usage.Calls, r.Usage.CostUSD)
	}
	if len(r.Fallbacks) > 0 {
		names := make([]string, len(r.Fallbacks))
		for i, f := range r.Fallbacks {
			names[i] = string(f)
		}
		fmt.Fprintf(&b, "- **Degraded steps:** %s\n", strings.Join(names, ", "))
	}

	b.WriteString("\n## Generated prompt\n\n")
	writeFenced(&b, r.GeneratedPrompt)

	b.WriteString("\n## Evaluation\n\n")
	if len(r.Evaluations) == 0 {
		b.WriteString("_No evaluation notes._\n")
	}
	for _, e := range r.Evaluations {
		b.WriteString(e)
		b.WriteString("\n\n")
	}

	b.WriteString("\n## Alternatives\n")
	for i, alt := range r.AlternativePrompts {
		fmt.Fprintf(&b, "\n### Alternative %d\n\n", i+1)
		writeFenced(&b, alt)
	}

	b.WriteString("\n## Final recommendation\n\n")
	writeFenced(&b, r.FinalRecommendation)
	return b.String()
}

// RenderSummary renders a shortened report for chat-style output.
func RenderSummary(r Response) string {
	var b strings.Builder

	b.WriteString("**Prompt optimization complete**\n\n")
	fmt.Fprintf(&b, "**Role:** %s\n", r.Role)
	fmt.Fprintf(&b, "**Model:** %s\n", strings.ToUpper(r.ModelType))
	fmt.Fprintf(&b, "**Examples:** %d\n\n", len(r.OriginalExamples))

	b.WriteString("**Generated prompt:**\n")
	writeFenced(&b, r.GeneratedPrompt)

	if len(r.Evaluations) > 0 {
		b.WriteString("\n**Evaluation:**\n")
		b.WriteString(truncate(strings.Join(r.Evaluations, "\n"), summaryEvaluationLimit))
		b.WriteString("\n")
	}

	if len(r.AlternativePrompts) > 0 {
		fmt.Fprintf(&b, "\n**Alternatives (%d):**\n", len(r.AlternativePrompts))
		for i, alt := range r.AlternativePrompts {
			fmt.Fprintf(&b, "\n**Alternative %d:**\n", i+1)
			writeFenced(&b, truncate(alt, summaryAlternativeLimit))
		}
	}

	b.WriteString("\n**Final recommendation:**\n")
	writeFenced(&b, r.FinalRecommendation)
	return b.String()
}

func writeFenced(b *strings.Builder, text string) {
	b.WriteString("```\n")
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n```\n")
}

// truncate cuts text to limit runes, marking the cut with "...".
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
