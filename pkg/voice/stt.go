package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/echo-dev/echo/internal/probe"
	"github.com/echo-dev/echo/pkg/audio"
)

// STTClient is the VoiceEngine's transcription backend (spec §4.5): a
// hand-rolled multipart REST client against an OpenAI-transcriptions-shaped
// endpoint, in the teacher's pkg/providers/stt/openai.go style.
type STTClient struct {
	baseURL    string
	apiKey     string
	model      string
	sampleRate int
	timeout    time.Duration
	client     *http.Client

	availability *probe.Availability
}

// NewSTTClient builds a client against baseURL (POST
// {base}/v1/audio/transcriptions, GET {base}/v1/models for health).
func NewSTTClient(baseURL, apiKey, model string, sampleRate int, timeout time.Duration) *STTClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &STTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		sampleRate: sampleRate,
		timeout:    timeout,
		client:     &http.Client{Timeout: timeout},
	}
	c.availability = probe.New(c.healthCheck, 60*time.Second)
	return c
}

func (c *STTClient) Start(ctx context.Context) { c.availability.Start(ctx) }
func (c *STTClient) Stop()                     { c.availability.Stop() }
func (c *STTClient) Available() bool           { return c.availability.Available() }

func (c *STTClient) healthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Transcribe wraps pcm in a WAV container and POSTs it as multipart form
// data. Returns "", false on any network/decode/timeout error (spec §4.5).
func (c *STTClient) Transcribe(ctx context.Context, pcm []int16) (string, bool) {
	if !c.Available() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wavData := audio.WrapWAV(int16ToBytesLE(pcm), c.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", c.model); err != nil {
		return "", false
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", false
	}
	if _, err := part.Write(wavData); err != nil {
		return "", false
	}
	if err := writer.Close(); err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return "", false
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.availability.MarkUnavailable()
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.ReadAll(resp.Body)
		c.availability.MarkUnavailable()
		return "", false
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", false
	}
	return result.Text, true
}

func int16ToBytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
