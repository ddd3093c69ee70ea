package tts

import (
	"strings"
	"time"
)

// Segment is one spoken unit of a [Script].
type Segment struct {
	// Text is the text to speak. A segment with empty text and a positive
	// PauseAfter is a pure pause.
	Text string

	// Language hints the segment's language as a lowercase code ("de", "en").
	// Narration scripts interleave languages; providers that support
	// per-segment language switching should honour it, others may ignore it.
	Language string

	// PauseAfter requests silence after the segment. Zero means no explicit
	// pause beyond what the backend's prosody produces.
	PauseAfter time.Duration
}

// Script is a complete narration request: an ordered segment list plus voice
// selection. Segment order is the contract; providers must never reorder.
type Script struct {
	Segments []Segment

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider's configured default.
	Voice string

	// Language is the dominant language of the script, used for voice
	// selection when Voice is empty.
	Language string

	// Speed adjusts the speaking rate (0.5–2.0). Zero means the provider
	// default.
	Speed float64
}

// Empty reports whether the script contains no speakable text.
func (s Script) Empty() bool {
	for _, seg := range s.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return false
		}
	}
	return true
}

// Text joins all segment texts with single spaces, for backends and logs that
// need the script as one string. Pause hints are not represented.
func (s Script) Text() string {
	parts := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Format identifies the container/encoding of synthesised audio.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// MIMEType returns the content type to serve the format under. Raw PCM has no
// registered type and is served as octet-stream.
func (f Format) MIMEType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == "" {
		return "bin"
	}
	return string(f)
}

// Audio is one completed synthesis artifact.
type Audio struct {
	// Data is the encoded audio. Never empty on a successful synthesis.
	Data []byte

	// Format describes how Data is encoded.
	Format Format

	// SampleRate is the sample frequency in Hz for PCM and WAV data. Zero for
	// container formats that carry their own rate.
	SampleRate int
}

// Voice describes one entry of a provider's voice catalogue.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// Language is the voice's primary language code, when the catalogue
	// reports one.
	Language string

	// Metadata holds provider-specific voice attributes (gender, age, accent).
	Metadata map[string]string
}
