// Package tokens estimates prompt sizes for metrics and capability reporting.
//
// Counting uses the tiktoken BPE tables when they can be loaded and falls back
// to a character heuristic (1 token per 4 characters) otherwise, since
// Gemini, Anthropic and Ollama do not publish an offline tokenizer.
package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for models tiktoken does not recognise.
const DefaultEncoding = "cl100k_base"

var (
	mu         sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
	unloadable = map[string]bool{}
)

// Count returns the token count of text for model.
func Count(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate approximates the token count without a tokenizer.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func encoderFor(model string) *tiktoken.Tiktoken {
	mu.Lock()
	defer mu.Unlock()

	if enc, ok := encoders[model]; ok {
		return enc
	}
	if unloadable[model] {
		return nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
	}
	if err != nil {
		// BPE tables are fetched on first use; offline hosts fall back to Estimate.
		unloadable[model] = true
		return nil
	}
	encoders[model] = enc
	return enc
}
