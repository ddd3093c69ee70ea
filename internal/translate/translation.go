// Package translate orchestrates the translation pipeline and owns its
// aggregate result type.
//
// A request flows through four stages: the style directive is compiled and
// sent to the generative backend ([pkg/provider/llm]), the reply is parsed
// into per-style sections ([internal/extract]), each section's raw pairs are
// grouped and confidence-scored ([internal/align]), and the synchronization
// layer ([Assemble]) folds everything into one immutable [Translation].
//
// The aggregate stores each style's alignment entries exactly once. Both the
// UI payload and the narration script must be built from that one list;
// nothing in this package (or its consumers) re-derives a second phrase
// sequence from the sentence text. A style with zero entries falls back to
// whole-sentence presentation for both consumers.
package translate

import (
	"github.com/MrWong99/lingocast/internal/align"
	"github.com/MrWong99/lingocast/internal/styles"
)

// Translation is the aggregate result of one pipeline run. It is immutable
// once assembled: consumers read the maps, they never write them. Use
// [Translation.WithAudioRef] to attach the narration artifact.
type Translation struct {
	// OriginalText is the learner's sentence exactly as received.
	OriginalText string `json:"original_text"`

	// SourceLang is the language of OriginalText.
	SourceLang styles.Language `json:"source_lang"`

	// PrimaryStyle is the style whose sentence is surfaced outside the
	// per-style map, chosen by register priority with enable-order tie-break.
	PrimaryStyle styles.Style `json:"primary_style"`

	// Sentences holds the rendered sentence per style ID.
	Sentences map[string]string `json:"sentences"`

	// Entries holds the ordered alignment entries per style ID. This is the
	// single source of truth for phrase breakdowns: UI rendering and audio
	// narration both iterate exactly this list.
	Entries map[string][]align.Entry `json:"entries"`

	// AudioRef references the stored narration artifact; empty when narration
	// was not requested or synthesis failed.
	AudioRef string `json:"audio_ref,omitempty"`
}

// PrimarySentence returns the sentence of the primary style.
func (t *Translation) PrimarySentence() string {
	return t.Sentences[t.PrimaryStyle.ID()]
}

// Sentence returns the rendered sentence for s and whether the style is
// present in the aggregate.
func (t *Translation) Sentence(s styles.Style) (string, bool) {
	sentence, ok := t.Sentences[s.ID()]
	return sentence, ok
}

// EntriesFor returns s's alignment entry list. The returned slice is the
// aggregate's own list; callers must treat it as read-only. Nil when the
// style is absent or has no entries.
func (t *Translation) EntriesFor(s styles.Style) []align.Entry {
	return t.Entries[s.ID()]
}

// Styles returns the styles present in the aggregate, filtered from prefs so
// the enable order is preserved.
func (t *Translation) Styles(prefs styles.Preferences) []styles.Style {
	out := make([]styles.Style, 0, len(t.Sentences))
	for _, s := range prefs.Styles {
		if _, ok := t.Sentences[s.ID()]; ok {
			out = append(out, s)
		}
	}
	return out
}

// WithAudioRef returns a copy of the aggregate with the narration reference
// attached. The maps are shared with the receiver; they are read-only by
// contract.
func (t *Translation) WithAudioRef(ref string) *Translation {
	cp := *t
	cp.AudioRef = ref
	return &cp
}

// Summary describes the confidence distribution of every entry in the
// aggregate. The durable cache tier uses Mean to decide whether a result is
// worth persisting.
type Summary struct {
	// Entries is the total alignment entry count across all styles.
	Entries int `json:"entries"`

	// Mean is the arithmetic mean of the reported confidences. Zero when the
	// aggregate has no entries.
	Mean float64 `json:"mean"`

	// Min is the lowest reported confidence. Zero when there are no entries.
	Min float64 `json:"min"`

	// Floored counts entries whose raw score was raised to the reporting
	// floor.
	Floored int `json:"floored"`
}

// Summary computes the confidence summary over every style's entries.
// RawConfidence is dropped by serialization, so on a deserialized aggregate
// Floored reports zero rather than counting every entry.
func (t *Translation) Summary() Summary {
	var s Summary
	total := 0.0
	for _, entries := range t.Entries {
		for _, e := range entries {
			if s.Entries == 0 || e.Confidence < s.Min {
				s.Min = e.Confidence
			}
			if e.RawConfidence != 0 && e.RawConfidence < e.Confidence {
				s.Floored++
			}
			total += e.Confidence
			s.Entries++
		}
	}
	if s.Entries > 0 {
		s.Mean = total / float64(s.Entries)
	}
	return s
}
