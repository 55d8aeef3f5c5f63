package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/echo-dev/echo/internal/probe"
	"github.com/echo-dev/echo/pkg/events"
)

// hiddenPrompt is the fixed instruction prepended to every free-text
// summarization call (spec §4.2: "Hidden prompt fixed").
const hiddenPrompt = "Summarize the following assistant message as a single spoken sentence of 20 words or fewer, imperative and concise, with no markdown:\n\n"

// truncationHardLimit and truncationKeep implement the fallback contract
// (spec §4.2): text <= 150 chars passes through verbatim; longer text is cut
// to the first 140 chars plus an ellipsis.
const (
	truncationHardLimit = 150
	truncationKeep      = 140
)

// LLMClient is the Summarizer's free-text summarizer. It wraps a local
// generate-style HTTP endpoint (spec §6.4) in the teacher's hand-rolled
// net/http + encoding/json provider style (pkg/providers/llm/openai.go),
// since the contract is a small custom local server rather than a hosted
// provider with a published SDK.
type LLMClient struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client

	availability *probe.Availability
}

// NewLLMClient builds a client against baseURL (spec §6.4: POST
// {base}/api/generate, GET {base}/api/tags).
func NewLLMClient(baseURL, model string, timeout time.Duration) *LLMClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &LLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
	c.availability = probe.New(c.healthCheck, 60*time.Second)
	return c
}

// Start probes availability once and begins periodic re-probing while down.
func (c *LLMClient) Start(ctx context.Context) { c.availability.Start(ctx) }

// Stop cancels the re-probe loop.
func (c *LLMClient) Stop() { c.availability.Stop() }

// Available reports the last-known health state.
func (c *LLMClient) Available() bool { return c.availability.Available() }

func (c *LLMClient) healthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize returns a single sentence <= 20 words when the LLM is
// available, falling back to truncation on any failure (spec §4.2: "Any
// network, decode, or timeout error is treated as unavailable for that call
// and falls back to truncation").
func (c *LLMClient) Summarize(ctx context.Context, text string) (summary string, method events.Method) {
	if !c.Available() {
		return truncate150(text), events.MethodTruncation
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  c.model,
		Prompt: hiddenPrompt + text,
		Stream: false,
		Options: map[string]interface{}{
			"num_predict": 50,
			"temperature": 0.3,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return truncate150(text), events.MethodTruncation
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return truncate150(text), events.MethodTruncation
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.availability.MarkUnavailable()
		return truncate150(text), events.MethodTruncation
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.availability.MarkUnavailable()
		return truncate150(text), events.MethodTruncation
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return truncate150(text), events.MethodTruncation
	}

	result := strings.TrimSpace(out.Response)
	if result == "" {
		return truncate150(text), events.MethodTruncation
	}
	return result, events.MethodLLM
}

// truncate150 implements the truncation fallback contract exactly.
func truncate150(text string) string {
	if len(text) <= truncationHardLimit {
		return text
	}
	return fmt.Sprintf("%s…", text[:truncationKeep])
}
