package speaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echo-dev/echo/internal/probe"
)

// TTSClient is the SpeakerEngine's synthesis backend (spec §4.4): a
// hand-rolled REST client against an ElevenLabs-shaped endpoint, in the
// teacher's provider style (pkg/providers/stt/openai.go, pkg/providers/llm/openai.go)
// rather than an imported SDK, since the pack carries none for this API.
type TTSClient struct {
	baseURL string
	apiKey  string
	voiceID string
	model   string
	timeout time.Duration
	client  *http.Client

	availability *probe.Availability
}

// NewTTSClient builds a client against baseURL. An empty apiKey means the
// provider is permanently unavailable until the process restarts with a new
// configuration (spec §4.4: "a missing API key ⇒ permanently unavailable").
func NewTTSClient(baseURL, apiKey, voiceID, model string, timeout time.Duration) *TTSClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &TTSClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voiceID: voiceID,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
	if apiKey == "" {
		c.availability = probe.New(func(context.Context) bool { return false }, time.Hour)
	} else {
		c.availability = probe.New(c.healthCheck, 60*time.Second)
	}
	return c
}

// Start probes availability once and begins periodic re-probing while down.
func (c *TTSClient) Start(ctx context.Context) { c.availability.Start(ctx) }

// Stop cancels the re-probe loop.
func (c *TTSClient) Stop() { c.availability.Stop() }

// Available reports the last-known health state.
func (c *TTSClient) Available() bool { return c.availability.Available() }

func (c *TTSClient) healthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return false
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type synthesizeRequest struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings map[string]float64  `json:"voice_settings"`
}

// Synthesize returns signed 16-bit mono PCM at 16 kHz (the pcm_16000 output
// format), or nil if synthesis is unavailable or fails for any reason
// (spec §4.4: "Must never raise").
func (c *TTSClient) Synthesize(ctx context.Context, text string) []int16 {
	if !c.Available() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := synthesizeRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_16000", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.availability.MarkUnavailable()
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.availability.MarkUnavailable()
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return bytesToInt16LE(raw)
}

// bytesToInt16LE reinterprets a little-endian PCM16 byte stream as samples,
// dropping a single trailing odd byte if present.
func bytesToInt16LE(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return out
}
