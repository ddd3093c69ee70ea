// Package openai provides a narration provider backed by the OpenAI
// text-to-speech API.
//
// The speech endpoint takes one plain-text input per request and offers no
// pause markup, so a script is rendered into a single input string before
// synthesis: short pause hints become an ellipsis beat, pauses of a second or
// longer become a paragraph break. The rendered result keeps the script's
// segment order so the narration follows the on-screen reading order.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model. It supports voice
// instructions, unlike the older tts-1 family.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

// DefaultVoice is used when neither the script nor the provider selects one.
const DefaultVoice = "alloy"

// pcmSampleRate is the fixed rate of the wav and pcm response formats.
const pcmSampleRate = 24000

// knownVoices is the published voice catalogue. The API has no listing
// endpoint, so Voices serves this static set.
var knownVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"nova", "onyx", "sage", "shimmer", "verse",
}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	format       tts.Format
	instructions string
}

// config holds optional configuration for the provider.
type config struct {
	model        string
	voice        string
	format       tts.Format
	instructions string
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the speech model (e.g. "tts-1", "tts-1-hd",
// "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice sets the default voice used when the script does not select one.
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithFormat sets the requested audio container. Supported values are
// tts.FormatMP3 (default), tts.FormatWAV and tts.FormatPCM.
func WithFormat(f tts.Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithInstructions sets voice instructions (e.g. "speak slowly and clearly").
// They are only sent to models that accept them; the tts-1 family ignores the
// option.
func WithInstructions(instructions string) Option {
	return func(c *config) {
		c.instructions = instructions
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI narration Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}

	cfg := &config{
		model:  DefaultModel,
		voice:  DefaultVoice,
		format: tts.FormatMP3,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		voice:        cfg.voice,
		format:       cfg.format,
		instructions: cfg.instructions,
	}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "openai" }

// Synthesize implements tts.Provider. The whole script is rendered into one
// speech request; pause hints are approximated with punctuation because the
// endpoint has no timing markup.
func (p *Provider) Synthesize(ctx context.Context, script tts.Script) (*tts.Audio, error) {
	if script.Empty() {
		return nil, fmt.Errorf("openai tts: empty script")
	}
	voice := script.Voice
	if voice == "" {
		voice = p.voice
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          renderInput(script),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: responseFormat(p.format),
	}
	if script.Speed > 0 {
		params.Speed = param.NewOpt(script.Speed)
	}
	if p.instructions != "" && supportsInstructions(p.model) {
		params.Instructions = param.NewOpt(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai tts: no audio data received")
	}

	return &tts.Audio{
		Data:       data,
		Format:     p.format,
		SampleRate: sampleRate(p.format),
	}, nil
}

// Voices implements tts.Provider. The catalogue is static; the API offers no
// listing endpoint.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	voices := make([]tts.Voice, 0, len(knownVoices))
	for _, id := range knownVoices {
		voices = append(voices, tts.Voice{
			ID:       id,
			Name:     id,
			Provider: "openai",
			Metadata: map[string]string{
				"model": p.model,
			},
		})
	}
	return voices, nil
}

// renderInput flattens the script into the single input string the speech
// endpoint accepts. Segment order is preserved; pause hints become pauseMark
// punctuation attached to the preceding text. Leading pauses are dropped
// since silence before the first word carries no information.
func renderInput(script tts.Script) string {
	var b strings.Builder
	needSpace := false
	for _, seg := range script.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			if needSpace {
				b.WriteString(" ")
			}
			b.WriteString(t)
			needSpace = true
		}
		if seg.PauseAfter > 0 && b.Len() > 0 {
			b.WriteString(pauseMark(seg.PauseAfter))
			needSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// pauseMark maps a pause hint to punctuation the model reads as a beat. Short
// pauses become an ellipsis, a second or more becomes a paragraph break.
func pauseMark(d time.Duration) string {
	if d >= time.Second {
		return "\n\n"
	}
	return " ... "
}

// supportsInstructions reports whether the model accepts voice instructions.
// Only the gpt-4o-mini speech family does; tts-1 and tts-1-hd reject them.
func supportsInstructions(model string) bool {
	return strings.HasPrefix(model, "gpt-4o-mini")
}

// responseFormat maps the provider-neutral format onto the API enum. Unknown
// formats fall back to mp3, mirroring the API's own default.
func responseFormat(f tts.Format) oai.AudioSpeechNewParamsResponseFormat {
	switch f {
	case tts.FormatWAV:
		return oai.AudioSpeechNewParamsResponseFormatWAV
	case tts.FormatPCM:
		return oai.AudioSpeechNewParamsResponseFormatPCM
	default:
		return oai.AudioSpeechNewParamsResponseFormatMP3
	}
}

// sampleRate returns the fixed decode rate for raw formats, 0 for containers
// that carry their own timing metadata.
func sampleRate(f tts.Format) int {
	switch f {
	case tts.FormatWAV, tts.FormatPCM:
		return pcmSampleRate
	default:
		return 0
	}
}
