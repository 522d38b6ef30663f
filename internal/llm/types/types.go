package types

import (
	"errors"
	"net/http"
	"time"
)

// ErrEmptyResponse is returned by provider clients when the model answered
// without any usable text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`    // user, assistant, system
	Content string `json:"content"` // message text
}

// Options tunes a single completion call. Zero values fall back to the
// adapter's configured defaults.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	System      string  `json:"system,omitempty"` // optional system instruction
}

// Merge fills unset fields of o from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.Temperature == 0 {
		o.Temperature = defaults.Temperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaults.MaxTokens
	}
	if o.System == "" {
		o.System = defaults.System
	}
	return o
}

// Messages renders the options and prompt as a chat transcript.
func (o Options) Messages(prompt string) []Message {
	msgs := make([]Message, 0, 2)
	if o.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: o.System})
	}
	return append(msgs, Message{Role: "user", Content: prompt})
}

// ClientOptions carries the connection settings shared by all provider clients.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxTokens  int
	Timeout    time.Duration
}

// ClientOption configures a provider client.
type ClientOption func(*ClientOptions)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) { o.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *ClientOptions) { o.HTTPClient = c }
}

// WithMaxTokens sets the default response token cap.
func WithMaxTokens(n int) ClientOption {
	return func(o *ClientOptions) { o.MaxTokens = n }
}

// WithTimeout sets the request timeout used when no HTTP client is given.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) { o.Timeout = d }
}

// ApplyClientOptions resolves opts over the given defaults.
func ApplyClientOptions(defaults ClientOptions, opts ...ClientOption) ClientOptions {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	return o
}
