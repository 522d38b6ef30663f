package optimizer

import (
	"regexp"
	"strings"
)

// Model output grammar.
//
// Prompt section: starts after the first line containing "PROMPT:" (text after
// the colon on that line is kept) and ends at a line containing
// "ADDITIONAL_EXAMPLES:" or "DESIGN_PRINCIPLES:". Without a PROMPT: line the
// text before any end marker is used.
//
// Findings: a finding starts at a marker line (numbered item, bullet or
// markdown heading) no deeper than the shallowest marker. When numbered items
// are present only numbered items start findings, so nested bullets stay with
// their item. Other lines continue the current finding and horizontal rules
// are dropped. Text before the first marker is a finding of its own. Without
// marker lines the text is split into blank-line separated paragraphs.
//
// Alternatives: a section starts at a header such as "ALTERNATIVE 1:",
// "ALTERNATIVE PROMPT 1:", "**Option 2**" or "### Version 3 (Focus: tone)".
// A focus label on the header is captured. When the header has none, a
// bracketed "[Focus: ...]" line before the body is captured instead. Both
// are left out of the body.

var (
	findingMarker     = regexp.MustCompile(`^\s*(\d+[.)]|[-*•]|#{1,6}\s)`)
	numberedMarker    = regexp.MustCompile(`^\s*\d+[.)]`)
	ruleLine          = regexp.MustCompile(`^\s*([-*_]\s*){3,}$`)
	alternativeHeader = regexp.MustCompile(`(?i)^\W*(alternative|plan|option|version)(\s+[a-z]+)?\s*#?\s*\d+\b`)
	focusLabel        = regexp.MustCompile(`(?i)[\[(]?\s*focus\s*:\s*([^\])]*)[\])]?`)
	focusLine         = regexp.MustCompile(`(?i)^\s*[*_]*\[\s*focus\s*:([^\]]*)\][*_]*\s*$`)
	codeFence         = regexp.MustCompile("^\\s*(```|~~~)")
	paragraphBreak    = regexp.MustCompile(`\n\s*\n`)
	hasWord           = regexp.MustCompile(`[\pL\pN]`)
)

const (
	promptMarker             = "PROMPT:"
	additionalExamplesMarker = "ADDITIONAL_EXAMPLES:"
	designPrinciplesMarker   = "DESIGN_PRINCIPLES:"
)

// Alternative is one parsed improvement section.
type Alternative struct {
	Focus  string
	Prompt string
}

// ExtractPromptSection returns the body of the PROMPT: section of text, or
// the empty string when nothing usable remains.
func ExtractPromptSection(text string) string {
	lines := strings.Split(normalizeNewlines(text), "\n")

	start := -1
	var first string
	for i, line := range lines {
		if isSectionEnd(line) {
			continue
		}
		if idx := strings.Index(line, promptMarker); idx >= 0 {
			start = i + 1
			first = strings.Trim(line[idx+len(promptMarker):], " \t*_")
			break
		}
	}

	var body []string
	if start < 0 {
		start = 0
	} else if first != "" {
		body = append(body, first)
	}
	for _, line := range lines[start:] {
		if isSectionEnd(line) {
			break
		}
		body = append(body, line)
	}
	return stripFences(strings.Join(body, "\n"))
}

func isSectionEnd(line string) bool {
	return strings.Contains(line, additionalExamplesMarker) || strings.Contains(line, designPrinciplesMarker)
}

// SplitFindings splits an evaluation response into individual findings.
func SplitFindings(text string) []string {
	text = strings.TrimSpace(normalizeNewlines(text))
	if text == "" {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if !ruleLine.MatchString(line) {
			lines = append(lines, line)
		}
	}

	starts := findingMarker
	for _, line := range lines {
		if numberedMarker.MatchString(line) {
			starts = numberedMarker
			break
		}
	}
	depth := -1
	for _, line := range lines {
		if starts.MatchString(line) {
			if d := indentOf(line); depth < 0 || d < depth {
				depth = d
			}
		}
	}

	var raw []string
	if depth >= 0 {
		var current []string
		for _, line := range lines {
			if starts.MatchString(line) && indentOf(line) <= depth && len(current) > 0 {
				raw = append(raw, strings.Join(current, "\n"))
				current = nil
			}
			current = append(current, line)
		}
		raw = append(raw, strings.Join(current, "\n"))
	} else {
		raw = paragraphBreak.Split(text, -1)
	}

	findings := make([]string, 0, len(raw))
	for _, f := range raw {
		f = strings.TrimSpace(f)
		if hasWord.MatchString(f) {
			findings = append(findings, f)
		}
	}
	return findings
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// ExtractAlternatives returns the non-empty alternative sections of text in
// order of appearance.
func ExtractAlternatives(text string) []Alternative {
	var (
		out     []Alternative
		current *Alternative
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Prompt = stripFences(strings.Join(body, "\n"))
		if current.Prompt != "" {
			out = append(out, *current)
		}
		current, body = nil, nil
	}

	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		if loc := alternativeHeader.FindStringIndex(line); loc != nil {
			flush()
			current = &Alternative{}
			rest := line[loc[1]:]
			if m := focusLabel.FindStringSubmatchIndex(rest); m != nil {
				current.Focus = strings.TrimSpace(rest[m[2]:m[3]])
				rest = rest[:m[0]] + rest[m[1]:]
			}
			if rest = strings.TrimRight(strings.TrimLeft(rest, " \t:*_-#.)"), " \t*_"); rest != "" {
				body = append(body, rest)
			}
			continue
		}
		if current == nil {
			continue
		}
		if current.Focus == "" && strings.TrimSpace(strings.Join(body, "")) == "" {
			if m := focusLine.FindStringSubmatch(line); m != nil {
				current.Focus = strings.TrimSpace(m[1])
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return out
}

// PadAlternatives returns exactly AlternativeCount prompts, truncating extras
// and filling gaps with fallback.
func PadAlternatives(alternatives []Alternative, fallback string) []string {
	out := make([]string, 0, AlternativeCount)
	for _, alt := range alternatives {
		if len(out) == AlternativeCount {
			break
		}
		out = append(out, alt.Prompt)
	}
	for len(out) < AlternativeCount {
		out = append(out, fallback)
	}
	return out
}

// stripFences trims text and removes code fence lines.
func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if codeFence.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}
