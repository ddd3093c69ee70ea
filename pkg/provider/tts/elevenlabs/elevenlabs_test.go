package elevenlabs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// ---- WebSocket message construction ----

func TestSegmentMessage_WithVoiceSettings(t *testing.T) {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	data, err := segmentMessage(tts.Segment{Text: "Ananassaft"}, vs)
	if err != nil {
		t.Fatalf("segmentMessage: %v", err)
	}

	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Text != "Ananassaft " {
		t.Errorf("expected text %q, got %q", "Ananassaft ", msg.Text)
	}
	if msg.VoiceSettings == nil {
		t.Fatal("expected non-nil voice settings")
	}
	if msg.VoiceSettings.Stability != 0.5 {
		t.Errorf("expected stability 0.5, got %f", msg.VoiceSettings.Stability)
	}
	if msg.VoiceSettings.SimilarityBoost != 0.75 {
		t.Errorf("expected similarity_boost 0.75, got %f", msg.VoiceSettings.SimilarityBoost)
	}
}

func TestSegmentMessage_PauseBecomesBreakTag(t *testing.T) {
	data, err := segmentMessage(tts.Segment{Text: "pineapple juice", PauseAfter: 400 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("segmentMessage: %v", err)
	}

	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(msg.Text, `<break time="0.40s" />`) {
		t.Errorf("expected break tag in %q", msg.Text)
	}
	if !strings.HasPrefix(msg.Text, "pineapple juice ") {
		t.Errorf("expected text before break tag, got %q", msg.Text)
	}
	if msg.VoiceSettings != nil {
		t.Error("expected nil voice_settings when omitempty")
	}
}

func TestSegmentMessage_PureForm(t *testing.T) {
	// A pause-only segment carries just the break tag.
	data, err := segmentMessage(tts.Segment{PauseAfter: time.Second}, nil)
	if err != nil {
		t.Fatalf("segmentMessage: %v", err)
	}
	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Text != `<break time="1.00s" /> ` {
		t.Errorf("expected lone break tag, got %q", msg.Text)
	}
}

func TestBreakTagClampsToAPILimit(t *testing.T) {
	if got := breakTag(10 * time.Second); got != `<break time="3.00s" />` {
		t.Errorf("expected clamped break tag, got %q", got)
	}
}

// ---- URL construction ----

func TestBuildURLForVoice(t *testing.T) {
	url := buildURLForVoice("voice-abc123", "eleven_multilingual_v2")
	if !strings.Contains(url, "voice-abc123") {
		t.Errorf("URL should contain voice ID, got: %s", url)
	}
	if !strings.Contains(url, "eleven_multilingual_v2") {
		t.Errorf("URL should contain model ID, got: %s", url)
	}
	if !strings.HasPrefix(url, "wss://") {
		t.Errorf("URL should be a WebSocket URL, got: %s", url)
	}
}

// ---- Output format mapping ----

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in     string
		format tts.Format
		rate   int
	}{
		{"mp3_44100_128", tts.FormatMP3, 0},
		{"pcm_16000", tts.FormatPCM, 16000},
		{"pcm_24000", tts.FormatPCM, 24000},
		{"", tts.FormatMP3, 0},
	}
	for _, tc := range tests {
		format, rate := parseOutputFormat(tc.in)
		if format != tc.format || rate != tc.rate {
			t.Errorf("parseOutputFormat(%q) = (%s, %d), want (%s, %d)", tc.in, format, rate, tc.format, tc.rate)
		}
	}
}

// ---- Voice list response parsing ----

func TestParseVoicesResponse_Success(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Rachel",
				"category": "premade",
				"labels": {"gender": "female", "language": "en"}
			},
			{
				"voice_id": "def456",
				"name": "Adam",
				"category": "premade",
				"labels": {"gender": "male"}
			}
		]
	}`)

	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}

	rachel := voices[0]
	if rachel.ID != "abc123" {
		t.Errorf("expected ID 'abc123', got %q", rachel.ID)
	}
	if rachel.Name != "Rachel" {
		t.Errorf("expected Name 'Rachel', got %q", rachel.Name)
	}
	if rachel.Provider != "elevenlabs" {
		t.Errorf("expected Provider 'elevenlabs', got %q", rachel.Provider)
	}
	if rachel.Language != "en" {
		t.Errorf("expected Language 'en', got %q", rachel.Language)
	}
	if rachel.Metadata["gender"] != "female" {
		t.Errorf("expected gender 'female', got %q", rachel.Metadata["gender"])
	}
	if rachel.Metadata["category"] != "premade" {
		t.Errorf("expected category 'premade', got %q", rachel.Metadata["category"])
	}

	adam := voices[1]
	if adam.ID != "def456" {
		t.Errorf("expected ID 'def456', got %q", adam.ID)
	}
}

func TestParseVoicesResponse_Empty(t *testing.T) {
	raw := []byte(`{"voices":[]}`)
	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 0 {
		t.Errorf("expected 0 voices, got %d", len(voices))
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	_, err := parseVoicesResponse([]byte(`{invalid`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseVoicesResponse_NoLabels(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{"voice_id": "x1", "name": "Ghost", "category": "", "labels": null}
		]
	}`)
	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("expected 1 voice, got %d", len(voices))
	}
	// category is empty, so it should not appear in metadata.
	if _, ok := voices[0].Metadata["category"]; ok {
		t.Error("expected no 'category' key in metadata when category is empty")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key",
		WithModel("eleven_flash_v2_5"),
		WithOutputFormat("pcm_24000"),
		WithVoice("voice-1"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_flash_v2_5" {
		t.Errorf("expected model 'eleven_flash_v2_5', got %q", p.model)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("expected outputFormat 'pcm_24000', got %q", p.outputFormat)
	}
	if p.voice != "voice-1" {
		t.Errorf("expected default voice 'voice-1', got %q", p.voice)
	}
}

func TestSynthesizeRejectsEmptyScript(t *testing.T) {
	p, err := New("key", WithVoice("voice-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Script{}); err == nil {
		t.Error("expected error for empty script")
	}
}

func TestSynthesizeRequiresVoice(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	script := tts.Script{Segments: []tts.Segment{{Text: "hallo"}}}
	if _, err := p.Synthesize(context.Background(), script); err == nil {
		t.Error("expected error when no voice is selected")
	}
}
