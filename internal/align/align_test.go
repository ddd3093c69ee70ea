package align_test

import (
	"reflect"
	"testing"

	"github.com/MrWong99/lingocast/internal/align"
	"github.com/MrWong99/lingocast/internal/extract"
	"github.com/MrWong99/lingocast/internal/styles"
)

var germanNative = styles.Style{Language: styles.German, Register: styles.Native}

func TestAlignPineappleJuiceScenario(t *testing.T) {
	t.Parallel()

	pairs := []extract.RawPair{
		{Source: "Ananassaft", Target: "pineapple juice"},
		{Source: "für", Target: "for"},
		{Source: "das Mädchen", Target: "the girl"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	if len(entries) != 3 {
		t.Fatalf("Align() returned %d entries, want 3", len(entries))
	}

	for i, e := range entries {
		if e.Order != i {
			t.Errorf("entries[%d].Order = %d, want %d", i, e.Order, i)
		}
		if e.Style != germanNative {
			t.Errorf("entries[%d].Style = %v, want %v", i, e.Style, germanNative)
		}
	}

	compound := entries[0]
	if compound.SourcePhrase != "Ananassaft" {
		t.Fatalf("entries[0].SourcePhrase = %q, want Ananassaft", compound.SourcePhrase)
	}
	if compound.PhraseType != align.TypeCompound {
		t.Errorf("Ananassaft PhraseType = %q, want %q", compound.PhraseType, align.TypeCompound)
	}
	if compound.Confidence < 0.90 {
		t.Errorf("Ananassaft Confidence = %v, want >= 0.90 (curated compound, not floor-only)", compound.Confidence)
	}
	if compound.Tier != align.TierLexicon {
		t.Errorf("Ananassaft Tier = %q, want %q", compound.Tier, align.TierLexicon)
	}

	if entries[2].PhraseType != align.TypePhrase || !entries[2].MultiWord {
		t.Errorf("das Mädchen = %+v, want multi-word phrase", entries[2])
	}
}

func TestAlignGroupsDetachedSeparableVerb(t *testing.T) {
	t.Parallel()

	// "Ich hebe den Stift auf" — stem and prefix arrive as separate pairs
	// with another pair in between.
	pairs := []extract.RawPair{
		{Source: "Ich", Target: "I"},
		{Source: "hebe", Target: "pick"},
		{Source: "den Stift", Target: "the pen"},
		{Source: "auf", Target: "up"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	if len(entries) != 3 {
		t.Fatalf("Align() returned %d entries, want 3 (stem+prefix merged): %+v", len(entries), entries)
	}

	merged := entries[1]
	if merged.SourcePhrase != "hebe auf" {
		t.Errorf("merged SourcePhrase = %q, want \"hebe auf\"", merged.SourcePhrase)
	}
	if merged.TargetPhrase != "pick up" {
		t.Errorf("merged TargetPhrase = %q, want \"pick up\"", merged.TargetPhrase)
	}
	if merged.Unit != align.UnitSeparable {
		t.Errorf("merged Unit = %q, want %q", merged.Unit, align.UnitSeparable)
	}
	if !merged.IsPhrasalVerb() {
		t.Error("merged entry should report IsPhrasalVerb")
	}

	// Surrounding entries keep their relative order.
	if entries[0].SourcePhrase != "Ich" || entries[2].SourcePhrase != "den Stift" {
		t.Errorf("order after merge = [%q %q %q]", entries[0].SourcePhrase, merged.SourcePhrase, entries[2].SourcePhrase)
	}
	for i, e := range entries {
		if e.Order != i {
			t.Errorf("entries[%d].Order = %d, want %d", i, e.Order, i)
		}
	}
}

func TestAlignSeparableWindowBound(t *testing.T) {
	t.Parallel()

	// Prefix three pairs behind the stem: inside the default window,
	// outside a window of two.
	pairs := []extract.RawPair{
		{Source: "hebe", Target: "pick"},
		{Source: "den Becher", Target: "the mug"},
		{Source: "vom Tisch", Target: "off the table"},
		{Source: "auf", Target: "up"},
	}

	within := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	if len(within) != 3 || within[0].SourcePhrase != "hebe auf" {
		t.Fatalf("default window: entries = %+v, want merged \"hebe auf\" first", within)
	}

	beyond := align.NewEngine(nil, align.WithSeparableWindow(2)).
		Align(germanNative, styles.German, styles.English, pairs)
	if len(beyond) != 4 {
		t.Fatalf("window 2: %d entries, want 4 (prefix out of reach): %+v", len(beyond), beyond)
	}
	for _, e := range beyond {
		if e.Unit == align.UnitSeparable {
			t.Errorf("window 2: entry %q grouped as separable despite window", e.SourcePhrase)
		}
	}
}

func TestAlignGroupsAdjacentPhrasalVerb(t *testing.T) {
	t.Parallel()

	englishNative := styles.Style{Language: styles.English, Register: styles.Native}
	pairs := []extract.RawPair{
		{Source: "picked", Target: "hob"},
		{Source: "up", Target: "auf"},
		{Source: "the juice", Target: "den Saft"},
	}

	entries := align.NewEngine(nil).Align(englishNative, styles.English, styles.German, pairs)
	if len(entries) != 2 {
		t.Fatalf("Align() returned %d entries, want 2: %+v", len(entries), entries)
	}
	merged := entries[0]
	if merged.SourcePhrase != "picked up" || merged.TargetPhrase != "hob auf" {
		t.Errorf("merged = %q→%q, want \"picked up\"→\"hob auf\"", merged.SourcePhrase, merged.TargetPhrase)
	}
	if merged.Unit != align.UnitPhrasal {
		t.Errorf("Unit = %q, want %q", merged.Unit, align.UnitPhrasal)
	}
}

func TestAlignWithinPairSeparableClassified(t *testing.T) {
	t.Parallel()

	pairs := []extract.RawPair{
		{Source: "hebe auf", Target: "pick up"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	if len(entries) != 1 {
		t.Fatalf("Align() returned %d entries, want 1", len(entries))
	}
	if entries[0].Unit != align.UnitSeparable {
		t.Errorf("Unit = %q, want %q", entries[0].Unit, align.UnitSeparable)
	}
	if entries[0].PhraseType != align.TypePhrase {
		t.Errorf("PhraseType = %q, want %q", entries[0].PhraseType, align.TypePhrase)
	}
}

func TestAlignHeuristicCompound(t *testing.T) {
	t.Parallel()

	// Not in the curated table; long capitalized German token.
	pairs := []extract.RawPair{
		{Source: "Donaudampfschiff", Target: "Danube steamboat"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	e := entries[0]
	if e.PhraseType != align.TypeCompound {
		t.Fatalf("PhraseType = %q, want %q", e.PhraseType, align.TypeCompound)
	}
	if e.Tier != align.TierHeuristic {
		t.Errorf("Tier = %q, want %q", e.Tier, align.TierHeuristic)
	}
	// Base 0.86 + position bonus 0.04, no long-token penalty for compounds.
	if diff := e.RawConfidence - 0.90; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RawConfidence = %v, want 0.90", e.RawConfidence)
	}
}

func TestAlignEchoTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target string
	}{
		{name: "bracket wrapped", target: "[Fernweh]"},
		{name: "verbatim", target: "Fernweh"},
		{name: "near identical", target: "fernweh"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pairs := []extract.RawPair{{Source: "Fernweh", Target: tc.target}}
			entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
			e := entries[0]
			if e.Tier != align.TierEcho {
				t.Fatalf("Tier = %q, want %q", e.Tier, align.TierEcho)
			}
			if e.RawConfidence != 0.52 {
				t.Errorf("RawConfidence = %v, want the fixed echo score", e.RawConfidence)
			}
			if e.Confidence != align.ConfidenceFloor {
				t.Errorf("Confidence = %v, want floor %v", e.Confidence, align.ConfidenceFloor)
			}
		})
	}
}

func TestAlignTranslatedSimilarTargetIsNotEcho(t *testing.T) {
	t.Parallel()

	// Cognates differ enough that the echo tier must not fire.
	pairs := []extract.RawPair{{Source: "Haus", Target: "house"}}
	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	if entries[0].Tier == align.TierEcho {
		t.Errorf("cognate pair scored as echo: %+v", entries[0])
	}
}

func TestAlignConfidenceFloorAndRawRetained(t *testing.T) {
	t.Parallel()

	// Long separable unit at the sequence edge: base − long − phrasal, no
	// position bonus. Raw lands below the floor and must be clamped up.
	pairs := []extract.RawPair{
		{Source: "verabschiedete ab", Target: "said goodbye"},
		{Source: "der", Target: "the"},
		{Source: "Gast", Target: "guest"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	e := entries[0]
	if e.Unit != align.UnitSeparable {
		t.Fatalf("Unit = %q, want %q (fixture assumption)", e.Unit, align.UnitSeparable)
	}
	wantRaw := 0.86 - 0.05 - 0.07
	if diff := e.RawConfidence - wantRaw; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RawConfidence = %v, want %v", e.RawConfidence, wantRaw)
	}
	if e.Confidence != align.ConfidenceFloor {
		t.Errorf("Confidence = %v, want floor %v", e.Confidence, align.ConfidenceFloor)
	}
}

func TestAlignConfidenceAlwaysWithinBounds(t *testing.T) {
	t.Parallel()

	pairs := []extract.RawPair{
		{Source: "Ananassaft", Target: "pineapple juice"},
		{Source: "für", Target: "for"},
		{Source: "zappelnd", Target: "[zappelnd]"},
		{Source: "verabschiedete ab", Target: "said goodbye"},
		{Source: "ja", Target: "yes"},
		{Source: "Donaudampfschifffahrtsgesellschaft", Target: "Danube steamship company"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	for _, e := range entries {
		if e.Confidence < align.ConfidenceFloor || e.Confidence > align.ConfidenceCeil {
			t.Errorf("entry %q Confidence = %v outside [%v, %v]",
				e.SourcePhrase, e.Confidence, align.ConfidenceFloor, align.ConfidenceCeil)
		}
	}
}

func TestAlignShortTokenBonus(t *testing.T) {
	t.Parallel()

	pairs := []extract.RawPair{{Source: "ja", Target: "yes"}}
	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	e := entries[0]
	if e.Tier != align.TierHeuristic {
		t.Fatalf("Tier = %q, want heuristic (fixture must stay out of the lexicon)", e.Tier)
	}
	// Base 0.86 + short 0.06 + position 0.04 (single entry sits mid-span).
	want := 0.96
	if diff := e.RawConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RawConfidence = %v, want %v", e.RawConfidence, want)
	}
}

func TestAlignPositionalBonusOnlyInCentralSpan(t *testing.T) {
	t.Parallel()

	// Three heuristic-scored single words: only the middle one sits in the
	// central 20–80% span.
	pairs := []extract.RawPair{
		{Source: "Hund", Target: "dog"},
		{Source: "Katze", Target: "cat"},
		{Source: "Vogel", Target: "bird"},
	}

	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	approx := func(got, want float64) bool {
		diff := got - want
		return diff < 1e-9 && diff > -1e-9
	}
	if !approx(entries[0].RawConfidence, 0.86) {
		t.Errorf("edge entry RawConfidence = %v, want bare base 0.86", entries[0].RawConfidence)
	}
	if !approx(entries[1].RawConfidence, 0.90) {
		t.Errorf("central entry RawConfidence = %v, want 0.90", entries[1].RawConfidence)
	}
	if !approx(entries[2].RawConfidence, 0.86) {
		t.Errorf("edge entry RawConfidence = %v, want bare base 0.86", entries[2].RawConfidence)
	}
}

func TestAlignDeterministic(t *testing.T) {
	t.Parallel()

	pairs := []extract.RawPair{
		{Source: "Ich", Target: "I"},
		{Source: "hebe", Target: "pick"},
		{Source: "den Stift", Target: "the pen"},
		{Source: "auf", Target: "up"},
		{Source: "Fernweh", Target: "[Fernweh]"},
	}

	engine := align.NewEngine(nil)
	first := engine.Align(germanNative, styles.German, styles.English, pairs)
	for i := 0; i < 20; i++ {
		if got := engine.Align(germanNative, styles.German, styles.English, pairs); !reflect.DeepEqual(got, first) {
			t.Fatalf("Align() run %d differs:\n got %+v\nwant %+v", i, got, first)
		}
	}
}

func TestAlignEmptyPairsReturnsNil(t *testing.T) {
	t.Parallel()

	if got := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, nil); got != nil {
		t.Errorf("Align(nil) = %+v, want nil (whole-sentence fallback, no invented pairs)", got)
	}
}

func TestAlignNeverSplitsMultiWordPair(t *testing.T) {
	t.Parallel()

	pairs := []extract.RawPair{
		{Source: "das kleine Mädchen", Target: "the little girl"},
	}
	entries := align.NewEngine(nil).Align(germanNative, styles.German, styles.English, pairs)
	if len(entries) != 1 {
		t.Fatalf("Align() returned %d entries, want 1 — units must never split", len(entries))
	}
	if !entries[0].MultiWord || entries[0].PhraseType != align.TypePhrase {
		t.Errorf("entry = %+v, want multi-word phrase", entries[0])
	}
}
