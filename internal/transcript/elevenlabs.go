package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultSpeechToTextURL = "https://api.elevenlabs.io/v1/speech-to-text"
	defaultScribeTokenURL  = "https://api.elevenlabs.io/v1/single-use-token/realtime_scribe"
)

// ElevenLabsClient calls the ElevenLabs speech-to-text API.
type ElevenLabsClient struct {
	HTTPClient      *http.Client
	APIKey          string
	SpeechToTextURL string
	ScribeTokenURL  string
}

// speechToTextResponse is the documented response schema. Optional fields
// that are absent leave their zero value; unknown fields are ignored.
type speechToTextResponse struct {
	Text        string   `json:"text"`
	AudioEvents []string `json:"audio_events,omitempty"`
}

type scribeTokenResponse struct {
	Token string `json:"token"`
}

// NewElevenLabsClient constructs a client for the hosted API.
func NewElevenLabsClient(apiKey string) *ElevenLabsClient {
	return &ElevenLabsClient{
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		APIKey:          apiKey,
		SpeechToTextURL: defaultSpeechToTextURL,
		ScribeTokenURL:  defaultScribeTokenURL,
	}
}

// Convert submits one audio buffer for transcription.
func (c *ElevenLabsClient) Convert(ctx context.Context, audio []byte, opts ConvertOptions) (Result, error) {
	if c.APIKey == "" {
		return Result{}, fmt.Errorf("elevenlabs api key missing")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.webm")
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(audio); err != nil {
		return Result{}, err
	}
	_ = mw.WriteField("model_id", opts.ModelID)
	_ = mw.WriteField("tag_audio_events", strconv.FormatBool(opts.TagAudioEvents))
	_ = mw.WriteField("language_code", opts.LanguageCode)
	_ = mw.WriteField("diarize", strconv.FormatBool(opts.Diarize))
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SpeechToTextURL, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("elevenlabs error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var sr speechToTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Result{}, fmt.Errorf("elevenlabs decode: %w", err)
	}
	return Result{Text: sr.Text, AudioEvents: sr.AudioEvents}, nil
}

// MintRealtimeToken requests a single-use realtime scribe token, used by the
// browser client to stream audio directly to the provider.
func (c *ElevenLabsClient) MintRealtimeToken(ctx context.Context) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("elevenlabs api key missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ScribeTokenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("elevenlabs token error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr scribeTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("elevenlabs token decode: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("elevenlabs token: empty token in response")
	}
	return tr.Token, nil
}
