package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPromptSection(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "marker on its own line",
			in:   promptReply,
			want: "You are a senior engineer. Write a Python function named {function_name} that solves the task.",
		},
		{
			name: "text after marker kept",
			in:   "PROMPT: Summarize the ticket.\nKeep it short.\nDESIGN_PRINCIPLES:\nbrevity",
			want: "Summarize the ticket.\nKeep it short.",
		},
		{
			name: "markdown emphasis and fences",
			in:   "**PROMPT:**\n```\nTranslate to French.\n```\n**ADDITIONAL_EXAMPLES:**\nInput: hi",
			want: "Translate to French.",
		},
		{
			name: "no marker uses whole text",
			in:   "  Just answer politely.  \n",
			want: "Just answer politely.",
		},
		{
			name: "no marker stops at end marker",
			in:   "Answer politely.\nDESIGN_PRINCIPLES:\nbe nice",
			want: "Answer politely.",
		},
		{
			name: "empty section",
			in:   "PROMPT:\n\nADDITIONAL_EXAMPLES:\nstuff",
			want: "",
		},
		{
			name: "windows newlines",
			in:   "PROMPT:\r\nDo it.\r\nDESIGN_PRINCIPLES:\r\nx",
			want: "Do it.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPromptSection(tt.in))
		})
	}
}

func TestSplitFindings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "numbered items with preamble and continuation",
			in:   evaluationReply,
			want: []string{
				"Overall the prompt is usable.",
				"1. Strengths: clear role framing.",
				"2. Weaknesses: no output format.\n   It also ignores error handling.",
				"3. Audience fit: good for developers.",
				"4. Improvements: add type hints.",
				"5. Overall score: 7/10",
			},
		},
		{
			name: "bullets and headings",
			in:   "## Strengths\nClear.\n- concise\n* friendly\n• polite",
			want: []string{"## Strengths\nClear.", "- concise", "* friendly", "• polite"},
		},
		{
			name: "nested bullets stay with their item",
			in:   "1. Strengths:\n   - concise\n   - clear\n2. Weaknesses:\n   - no format",
			want: []string{"1. Strengths:\n   - concise\n   - clear", "2. Weaknesses:\n   - no format"},
		},
		{
			name: "unindented bullets under numbered items",
			in:   "1. Strengths:\n- concise\n2. Weaknesses:\n- vague",
			want: []string{"1. Strengths:\n- concise", "2. Weaknesses:\n- vague"},
		},
		{
			name: "indented sub bullets without numbers",
			in:   "- Strengths\n  * concise\n- Weaknesses",
			want: []string{"- Strengths\n  * concise", "- Weaknesses"},
		},
		{
			name: "paragraphs without markers",
			in:   "The prompt is fine.\n\nIt could be shorter.\n   \nScore: 8",
			want: []string{"The prompt is fine.", "It could be shorter.", "Score: 8"},
		},
		{
			name: "rule lines dropped",
			in:   "1) good\n---\n2) bad",
			want: []string{"1) good", "2) bad"},
		},
		{
			name: "blank",
			in:   " \n\t\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitFindings(tt.in))
		})
	}
}

func TestExtractAlternatives(t *testing.T) {
	t.Run("canonical format", func(t *testing.T) {
		got := ExtractAlternatives(improvementReply)
		require.Len(t, got, 3)
		assert.Equal(t, Alternative{Focus: "clarity", Prompt: "Write a Python function named {function_name}."}, got[0])
		assert.Equal(t, "specificity", got[1].Focus)
		assert.Equal(t, "edge cases", got[2].Focus)
	})

	t.Run("markdown headers and standalone focus", func(t *testing.T) {
		in := "Here are my ideas.\n\n### Option 1\n[Focus: tone]\nBe warm.\n\n**Version 2 (Focus: brevity):**\n```text\nBe brief.\n```\n\nPlan #3 - Reply in bullet points."
		got := ExtractAlternatives(in)
		require.Len(t, got, 3)
		assert.Equal(t, Alternative{Focus: "tone", Prompt: "Be warm."}, got[0])
		assert.Equal(t, Alternative{Focus: "brevity", Prompt: "Be brief."}, got[1])
		assert.Equal(t, Alternative{Prompt: "Reply in bullet points."}, got[2])
	})

	t.Run("qualified headers", func(t *testing.T) {
		in := "ALTERNATIVE PROMPT 1: [Focus: clarity]\nBe clear.\n\nAlternative Prompt 2:\nBe brief.\n\n**Option Prompt #3**\nBe kind."
		got := ExtractAlternatives(in)
		require.Len(t, got, 3)
		assert.Equal(t, Alternative{Focus: "clarity", Prompt: "Be clear."}, got[0])
		assert.Equal(t, "Be brief.", got[1].Prompt)
		assert.Equal(t, "Be kind.", got[2].Prompt)
		assert.Equal(t, []string{"Be clear.", "Be brief.", "Be kind."}, PadAlternatives(got, "ORIGINAL"))
	})

	t.Run("focus text in the body is kept", func(t *testing.T) {
		got := ExtractAlternatives("ALTERNATIVE 1:\nFocus: respond in one sentence.\n\nALTERNATIVE 2: [Focus: tone]\n[Focus: ignored]\nBe warm.")
		require.Len(t, got, 2)
		assert.Equal(t, Alternative{Prompt: "Focus: respond in one sentence."}, got[0])
		assert.Equal(t, Alternative{Focus: "tone", Prompt: "[Focus: ignored]\nBe warm."}, got[1])
	})

	t.Run("empty sections dropped", func(t *testing.T) {
		got := ExtractAlternatives("ALTERNATIVE 1: [Focus: x]\n\nALTERNATIVE 2:\nOnly one.")
		require.Len(t, got, 1)
		assert.Equal(t, "Only one.", got[0].Prompt)
	})

	t.Run("no headers", func(t *testing.T) {
		assert.Empty(t, ExtractAlternatives("I cannot help with that."))
	})
}

func TestPadAlternatives(t *testing.T) {
	alts := []Alternative{{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"}, {Prompt: "d"}}

	assert.Equal(t, []string{"a", "b", "c"}, PadAlternatives(alts, "cur"))
	assert.Equal(t, []string{"a", "cur", "cur"}, PadAlternatives(alts[:1], "cur"))
	assert.Equal(t, []string{"cur", "cur", "cur"}, PadAlternatives(nil, "cur"))
}
