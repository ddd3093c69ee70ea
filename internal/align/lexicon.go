package align

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrWong99/lingocast/internal/styles"
	"gopkg.in/yaml.v3"
)

// LexiconPair is one curated phrase→phrase mapping with a pre-assigned
// confidence. Pairs are looked up exactly (after normalization) in both
// directions.
type LexiconPair struct {
	Source     string          `yaml:"source"`
	SourceLang styles.Language `yaml:"source_lang"`
	Target     string          `yaml:"target"`
	TargetLang styles.Language `yaml:"target_lang"`
	Confidence float64         `yaml:"confidence"`
	Type       PhraseType      `yaml:"type,omitempty"`
}

// lexiconFile is the YAML overlay format accepted by [Lexicon.LoadReader].
type lexiconFile struct {
	Pairs             []LexiconPair                `yaml:"pairs"`
	SeparablePrefixes map[styles.Language][]string `yaml:"separable_prefixes"`
	Particles         map[styles.Language][]string `yaml:"particles"`
}

// lexEntry is the stored value for one direction of a curated pair.
type lexEntry struct {
	confidence float64
	phraseType PhraseType
}

// Lexicon is the curated knowledge the alignment engine consults: exact
// phrase pairs with pre-assigned confidence, separable-verb prefixes and
// phrasal-verb particles per language.
//
// A Lexicon is built once at startup (built-in defaults plus optional YAML
// overlays) and must not be modified afterwards; the engine reads it without
// locking.
type Lexicon struct {
	// pairs: language-pair key → "source\x1ftarget" (normalized) → entry.
	// Both directions are inserted on Add.
	pairs map[string]map[string]lexEntry

	// typed: language → normalized phrase → curated phrase type. Lets the
	// grouping pass classify known compounds without a target match.
	typed map[styles.Language]map[string]PhraseType

	separablePrefixes map[styles.Language]map[string]bool
	particles         map[styles.Language]map[string]bool
}

// NewLexicon returns a Lexicon seeded with the built-in curated table:
// German↔English function words, common compounds, German separable-verb
// prefixes and English phrasal-verb particles.
func NewLexicon() *Lexicon {
	l := &Lexicon{
		pairs:             make(map[string]map[string]lexEntry),
		typed:             make(map[styles.Language]map[string]PhraseType),
		separablePrefixes: make(map[styles.Language]map[string]bool),
		particles:         make(map[styles.Language]map[string]bool),
	}
	for _, p := range builtinPairs {
		// Built-in entries are internally consistent; Add cannot fail here.
		_ = l.Add(p)
	}
	l.addSeparablePrefixes(styles.German, builtinGermanPrefixes)
	l.addParticles(styles.English, builtinEnglishParticles)
	return l
}

// Add inserts one curated pair (both directions). Confidence must lie in
// (0, 1]; the phrase type defaults to [TypeWord] ([TypePhrase] for
// multi-token sources).
func (l *Lexicon) Add(p LexiconPair) error {
	src := NormalizePhrase(p.Source)
	tgt := NormalizePhrase(p.Target)
	if src == "" || tgt == "" {
		return fmt.Errorf("align: lexicon pair %q→%q: empty phrase", p.Source, p.Target)
	}
	if !p.SourceLang.Known() || !p.TargetLang.Known() {
		return fmt.Errorf("align: lexicon pair %q→%q: unknown language pair %q→%q", p.Source, p.Target, p.SourceLang, p.TargetLang)
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		return fmt.Errorf("align: lexicon pair %q→%q: confidence %v outside (0, 1]", p.Source, p.Target, p.Confidence)
	}
	typ := p.Type
	if typ == "" {
		typ = TypeWord
		if strings.Contains(src, " ") {
			typ = TypePhrase
		}
	}
	if typ != TypeWord && typ != TypeCompound && typ != TypePhrase {
		return fmt.Errorf("align: lexicon pair %q→%q: unknown phrase type %q", p.Source, p.Target, typ)
	}

	e := lexEntry{confidence: p.Confidence, phraseType: typ}
	l.insert(p.SourceLang, p.TargetLang, src, tgt, e)
	l.insert(p.TargetLang, p.SourceLang, tgt, src, e)

	if l.typed[p.SourceLang] == nil {
		l.typed[p.SourceLang] = make(map[string]PhraseType)
	}
	l.typed[p.SourceLang][src] = typ
	return nil
}

func (l *Lexicon) insert(from, to styles.Language, src, tgt string, e lexEntry) {
	key := langPairKey(from, to)
	if l.pairs[key] == nil {
		l.pairs[key] = make(map[string]lexEntry)
	}
	l.pairs[key][src+"\x1f"+tgt] = e
}

// LookupPair returns the curated confidence and phrase type for an exact
// (normalized) source→target match in the given language direction.
func (l *Lexicon) LookupPair(from, to styles.Language, source, target string) (float64, PhraseType, bool) {
	e, ok := l.pairs[langPairKey(from, to)][NormalizePhrase(source)+"\x1f"+NormalizePhrase(target)]
	if !ok {
		return 0, "", false
	}
	return e.confidence, e.phraseType, true
}

// PhraseTypeOf returns the curated phrase type of a phrase in lang, when the
// lexicon knows the phrase at all (under any target).
func (l *Lexicon) PhraseTypeOf(lang styles.Language, phrase string) (PhraseType, bool) {
	t, ok := l.typed[lang][NormalizePhrase(phrase)]
	return t, ok
}

// IsSeparablePrefix reports whether token is a separable-verb prefix in lang.
func (l *Lexicon) IsSeparablePrefix(lang styles.Language, token string) bool {
	return l.separablePrefixes[lang][NormalizePhrase(token)]
}

// IsParticle reports whether token is a phrasal-verb particle in lang.
func (l *Lexicon) IsParticle(lang styles.Language, token string) bool {
	return l.particles[lang][NormalizePhrase(token)]
}

func (l *Lexicon) addSeparablePrefixes(lang styles.Language, prefixes []string) {
	if l.separablePrefixes[lang] == nil {
		l.separablePrefixes[lang] = make(map[string]bool)
	}
	for _, p := range prefixes {
		if n := NormalizePhrase(p); n != "" {
			l.separablePrefixes[lang][n] = true
		}
	}
}

func (l *Lexicon) addParticles(lang styles.Language, particles []string) {
	if l.particles[lang] == nil {
		l.particles[lang] = make(map[string]bool)
	}
	for _, p := range particles {
		if n := NormalizePhrase(p); n != "" {
			l.particles[lang][n] = true
		}
	}
}

// LoadFile merges a YAML overlay from disk into the lexicon. Intended to be
// called during startup only.
func (l *Lexicon) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("align: open lexicon file %q: %w", path, err)
	}
	defer f.Close()

	if err := l.LoadReader(f); err != nil {
		return fmt.Errorf("align: lexicon file %q: %w", path, err)
	}
	return nil
}

// LoadReader merges a YAML overlay into the lexicon. Unknown YAML keys are
// rejected to catch typos. Overlay pairs replace built-in pairs with the
// same source and target.
func (l *Lexicon) LoadReader(r io.Reader) error {
	var file lexiconFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("decode lexicon yaml: %w", err)
	}

	for i, p := range file.Pairs {
		if err := l.Add(p); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}
	for lang, prefixes := range file.SeparablePrefixes {
		if !lang.Known() {
			return fmt.Errorf("separable_prefixes: unknown language %q", lang)
		}
		l.addSeparablePrefixes(lang, prefixes)
	}
	for lang, particles := range file.Particles {
		if !lang.Known() {
			return fmt.Errorf("particles: unknown language %q", lang)
		}
		l.addParticles(lang, particles)
	}
	return nil
}

// NormalizePhrase lowercases a phrase, trims edge punctuation and collapses
// inner whitespace. Lookup keys and membership checks all go through it.
func NormalizePhrase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?;:\"'«»„“”")
	return strings.Join(strings.Fields(s), " ")
}

func langPairKey(from, to styles.Language) string {
	return string(from) + "→" + string(to)
}

// builtinGermanPrefixes are the separable-verb prefixes recognized when
// grouping German pairs.
var builtinGermanPrefixes = []string{
	"ab", "an", "auf", "aus", "bei", "dar", "ein", "fest", "fort", "her",
	"hin", "los", "mit", "nach", "teil", "um", "vor", "weg", "weiter",
	"zu", "zurück", "zusammen",
}

// builtinEnglishParticles are the phrasal-verb particles recognized when
// grouping English pairs.
var builtinEnglishParticles = []string{
	"up", "down", "out", "off", "on", "in", "over", "away", "back",
	"around", "along", "through", "together", "apart", "forward", "after",
	"by", "with",
}

// builtinPairs is the built-in curated table. Function words carry near-top
// confidence; compounds are typed so the grouping pass can classify them
// without a target match.
var builtinPairs = []LexiconPair{
	// German function words and everyday vocabulary.
	{Source: "der", SourceLang: styles.German, Target: "the", TargetLang: styles.English, Confidence: 0.99},
	{Source: "die", SourceLang: styles.German, Target: "the", TargetLang: styles.English, Confidence: 0.99},
	{Source: "das", SourceLang: styles.German, Target: "the", TargetLang: styles.English, Confidence: 0.99},
	{Source: "ein", SourceLang: styles.German, Target: "a", TargetLang: styles.English, Confidence: 0.98},
	{Source: "eine", SourceLang: styles.German, Target: "a", TargetLang: styles.English, Confidence: 0.98},
	{Source: "und", SourceLang: styles.German, Target: "and", TargetLang: styles.English, Confidence: 0.99},
	{Source: "oder", SourceLang: styles.German, Target: "or", TargetLang: styles.English, Confidence: 0.99},
	{Source: "aber", SourceLang: styles.German, Target: "but", TargetLang: styles.English, Confidence: 0.98},
	{Source: "für", SourceLang: styles.German, Target: "for", TargetLang: styles.English, Confidence: 0.99},
	{Source: "mit", SourceLang: styles.German, Target: "with", TargetLang: styles.English, Confidence: 0.99},
	{Source: "von", SourceLang: styles.German, Target: "from", TargetLang: styles.English, Confidence: 0.97},
	{Source: "zu", SourceLang: styles.German, Target: "to", TargetLang: styles.English, Confidence: 0.97},
	{Source: "in", SourceLang: styles.German, Target: "in", TargetLang: styles.English, Confidence: 0.98},
	{Source: "ist", SourceLang: styles.German, Target: "is", TargetLang: styles.English, Confidence: 0.99},
	{Source: "sind", SourceLang: styles.German, Target: "are", TargetLang: styles.English, Confidence: 0.99},
	{Source: "nicht", SourceLang: styles.German, Target: "not", TargetLang: styles.English, Confidence: 0.99},
	{Source: "ich", SourceLang: styles.German, Target: "i", TargetLang: styles.English, Confidence: 0.99},
	{Source: "du", SourceLang: styles.German, Target: "you", TargetLang: styles.English, Confidence: 0.98},
	{Source: "er", SourceLang: styles.German, Target: "he", TargetLang: styles.English, Confidence: 0.98},
	{Source: "sie", SourceLang: styles.German, Target: "she", TargetLang: styles.English, Confidence: 0.95},
	{Source: "es", SourceLang: styles.German, Target: "it", TargetLang: styles.English, Confidence: 0.98},
	{Source: "wir", SourceLang: styles.German, Target: "we", TargetLang: styles.English, Confidence: 0.98},
	{Source: "das mädchen", SourceLang: styles.German, Target: "the girl", TargetLang: styles.English, Confidence: 0.96, Type: TypePhrase},
	{Source: "bitte", SourceLang: styles.German, Target: "please", TargetLang: styles.English, Confidence: 0.97},
	{Source: "danke", SourceLang: styles.German, Target: "thank you", TargetLang: styles.English, Confidence: 0.97},

	// Common German compounds.
	{Source: "ananassaft", SourceLang: styles.German, Target: "pineapple juice", TargetLang: styles.English, Confidence: 0.95, Type: TypeCompound},
	{Source: "apfelsaft", SourceLang: styles.German, Target: "apple juice", TargetLang: styles.English, Confidence: 0.95, Type: TypeCompound},
	{Source: "orangensaft", SourceLang: styles.German, Target: "orange juice", TargetLang: styles.English, Confidence: 0.95, Type: TypeCompound},
	{Source: "flughafen", SourceLang: styles.German, Target: "airport", TargetLang: styles.English, Confidence: 0.95, Type: TypeCompound},
	{Source: "bahnhof", SourceLang: styles.German, Target: "train station", TargetLang: styles.English, Confidence: 0.93, Type: TypeCompound},
	{Source: "krankenhaus", SourceLang: styles.German, Target: "hospital", TargetLang: styles.English, Confidence: 0.94, Type: TypeCompound},
	{Source: "kühlschrank", SourceLang: styles.German, Target: "refrigerator", TargetLang: styles.English, Confidence: 0.94, Type: TypeCompound},
	{Source: "hausaufgaben", SourceLang: styles.German, Target: "homework", TargetLang: styles.English, Confidence: 0.93, Type: TypeCompound},
	{Source: "wochenende", SourceLang: styles.German, Target: "weekend", TargetLang: styles.English, Confidence: 0.94, Type: TypeCompound},
	{Source: "handschuh", SourceLang: styles.German, Target: "glove", TargetLang: styles.English, Confidence: 0.93, Type: TypeCompound},

	// Common German separable verbs, stored in split surface form.
	{Source: "räume auf", SourceLang: styles.German, Target: "tidy up", TargetLang: styles.English, Confidence: 0.92, Type: TypePhrase},
	{Source: "steht auf", SourceLang: styles.German, Target: "gets up", TargetLang: styles.English, Confidence: 0.92, Type: TypePhrase},
	{Source: "kommt an", SourceLang: styles.German, Target: "arrives", TargetLang: styles.English, Confidence: 0.91, Type: TypePhrase},
}
