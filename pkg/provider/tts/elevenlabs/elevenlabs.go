// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming-input WebSocket API. It implements the tts.Provider
// interface.
//
// Narration scripts are rendered by streaming each segment as one text
// message; pause hints become inline break tags, which the API honours up to
// three seconds. Audio chunks arrive base64-encoded over the same socket and
// are concatenated into a single artifact.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

const (
	wsEndpointFmt  = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesEndpoint = "https://api.elevenlabs.io/v1/voices"

	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// maxBreak is the longest pause the API accepts in a break tag.
	maxBreak = 3 * time.Second
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
// Narration interleaves two languages in one script, so the default is a
// multilingual model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128",
// "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoice sets the default voice ID used when the script does not select
// one.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voice = voiceID
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voice        string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "elevenlabs" }

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
// An empty Text flushes and closes the input stream.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio chunk
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Synthesize opens a WebSocket to ElevenLabs, streams the script's segments
// as text messages with inline break tags for pauses, and concatenates the
// returned audio chunks into one artifact.
func (p *Provider) Synthesize(ctx context.Context, script tts.Script) (*tts.Audio, error) {
	if script.Empty() {
		return nil, errors.New("elevenlabs: empty script")
	}
	voice := script.Voice
	if voice == "" {
		voice = p.voice
	}
	if voice == "" {
		return nil, errors.New("elevenlabs: no voice selected")
	}

	conn, _, err := websocket.Dial(ctx, buildURLForVoice(voice, p.model), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Authenticate and configure the stream.
	boi, _ := json.Marshal(boiMessage{
		Text: " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey:     p.apiKey,
		OutputFormat: p.outputFormat,
	})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	// Drain audio chunks concurrently with the segment writes below.
	type readResult struct {
		chunks [][]byte
		err    error
	}
	done := make(chan readResult, 1)
	go func() {
		var chunks [][]byte
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				// The server closes the socket after the final chunk; a normal
				// closure with audio in hand is success.
				if len(chunks) > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					err = nil
				}
				done <- readResult{chunks, err}
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Audio != "" {
				if chunk, err := base64.StdEncoding.DecodeString(resp.Audio); err == nil {
					chunks = append(chunks, chunk)
				}
			}
			if resp.IsFinal {
				done <- readResult{chunks, nil}
				return
			}
		}
	}()

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	for _, seg := range script.Segments {
		payload, err := segmentMessage(seg, vs)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode segment: %w", err)
		}
		// Voice settings only accompany the first fragment.
		vs = nil
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return nil, fmt.Errorf("elevenlabs: send segment: %w", err)
		}
	}

	// Empty text flushes the stream and signals end of input.
	flush, _ := json.Marshal(textMessage{Text: ""})
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		return nil, fmt.Errorf("elevenlabs: flush: %w", err)
	}

	res := <-done
	if res.err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", res.err)
	}
	if len(res.chunks) == 0 {
		return nil, errors.New("elevenlabs: no audio returned")
	}

	format, rate := parseOutputFormat(p.outputFormat)
	return &tts.Audio{
		Data:       bytes.Join(res.chunks, nil),
		Format:     format,
		SampleRate: rate,
	}, nil
}

// ---- Voices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// Voices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return voicesFromResponse(vr), nil
}

// ---- helpers ----

// segmentMessage constructs the JSON text payload for one script segment:
// the segment text followed by a break tag when a pause is requested.
func segmentMessage(seg tts.Segment, vs *voiceSettings) ([]byte, error) {
	var b strings.Builder
	if seg.Text != "" {
		b.WriteString(seg.Text)
		b.WriteString(" ")
	}
	if seg.PauseAfter > 0 {
		b.WriteString(breakTag(seg.PauseAfter))
		b.WriteString(" ")
	}
	return json.Marshal(textMessage{Text: b.String(), VoiceSettings: vs})
}

// breakTag renders a pause as an inline ElevenLabs break tag, clamped to the
// API's three-second maximum.
func breakTag(d time.Duration) string {
	if d > maxBreak {
		d = maxBreak
	}
	return fmt.Sprintf(`<break time="%.2fs" />`, d.Seconds())
}

// buildURLForVoice constructs the WebSocket URL for a given voice and model.
func buildURLForVoice(voiceID, model string) string {
	return fmt.Sprintf(wsEndpointFmt, voiceID, model)
}

// parseOutputFormat maps an ElevenLabs output_format value ("mp3_44100_128",
// "pcm_16000") to the artifact format and sample rate.
func parseOutputFormat(of string) (tts.Format, int) {
	switch {
	case strings.HasPrefix(of, "pcm_"):
		rate, _ := strconv.Atoi(strings.TrimPrefix(of, "pcm_"))
		return tts.FormatPCM, rate
	default:
		return tts.FormatMP3, 0
	}
}

// voicesFromResponse converts the raw catalogue into tts.Voice values.
func voicesFromResponse(vr voicesResponse) []tts.Voice {
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Language: v.Labels["language"],
			Metadata: meta,
		})
	}
	return voices
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of Voice values. Used by tests to verify
// the mapping without opening a real connection.
func parseVoicesResponse(data []byte) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return voicesFromResponse(vr), nil
}
