// Package align converts the parser's raw phrase pairs into ordered,
// confidence-scored alignment entries — the single list both the UI payload
// and the narration script are built from.
//
// Alignment proceeds in two stages:
//
//  1. Grouping: raw pairs that the source-language tokenizer recognizes as
//     one semantic unit are merged into a single entry. German separable
//     verbs (stem pair + detached prefix pair within a bounded window),
//     phrasal verbs (verb pair + adjacent particle pairs, at most three
//     source tokens) and compound nouns (agglutinated single tokens, never
//     split) are recognized. Grouping reduces N raw pairs to at most N
//     entries and preserves sentence order; orders are assigned 0..N-1
//     afterwards so the sequence is always contiguous.
//
//  2. Scoring: each grouped entry gets a confidence from a three-tier
//     strategy, first match wins. Tier one is an exact lookup against the
//     curated [Lexicon] with its pre-assigned confidence. Tier two is a
//     deterministic heuristic: a language-independent base, a bonus for
//     short tokens (function-word proxy), a penalty for very long
//     non-compound tokens, a bonus for entries whose position falls in the
//     central 20–80% of the sequence, and a penalty for phrasal/separable
//     units. Tier three catches untranslated echoes — a target that merely
//     repeats the source, usually bracket-wrapped — and assigns a low fixed
//     raw score (Jaro-Winkler similarity decides "merely repeats").
//
// Externally reported confidence is clamped into [ConfidenceFloor,
// ConfidenceCeil]; the unclamped value is kept in [Entry.RawConfidence] for
// diagnostics and is never serialized. The engine is deterministic: no
// randomness, no clock reads — identical input yields identical output.
package align

import (
	"strings"
	"unicode"

	"github.com/MrWong99/lingocast/internal/extract"
	"github.com/MrWong99/lingocast/internal/styles"
	"github.com/antzucaro/matchr"
)

// Confidence bounds reported to external consumers. Raw scores below the
// floor are raised to it, never dropped — low quality is reported, not
// hidden.
const (
	ConfidenceFloor = 0.80
	ConfidenceCeil  = 1.00
)

// PhraseType classifies an entry's source phrase.
type PhraseType string

const (
	TypeWord     PhraseType = "word"
	TypeCompound PhraseType = "compound"
	TypePhrase   PhraseType = "phrase"
)

// UnitKind records which multi-token rule grouped an entry, if any.
type UnitKind string

const (
	UnitNone      UnitKind = ""
	UnitCompound  UnitKind = "compound"
	UnitPhrasal   UnitKind = "phrasal"
	UnitSeparable UnitKind = "separable"
)

// Tier names the confidence tier that produced an entry's score.
type Tier string

const (
	TierLexicon   Tier = "lexicon"
	TierHeuristic Tier = "heuristic"
	TierEcho      Tier = "echo"
)

// Entry is one ordered, scored source↔target alignment record. Entries are
// immutable once returned by [Engine.Align].
type Entry struct {
	Style        styles.Style `json:"style"`
	Order        int          `json:"order"`
	SourcePhrase string       `json:"source_phrase"`
	TargetPhrase string       `json:"target_phrase"`

	// Confidence is the externally reported score, always within
	// [ConfidenceFloor, ConfidenceCeil].
	Confidence float64 `json:"confidence"`

	// RawConfidence is the unclamped internal estimate. Diagnostics only;
	// excluded from serialization so it can never leak to consumers.
	RawConfidence float64 `json:"-"`

	PhraseType PhraseType `json:"phrase_type"`
	Unit       UnitKind   `json:"unit,omitempty"`
	MultiWord  bool       `json:"multi_word"`

	// Tier names the scoring tier for diagnostics and metrics.
	Tier Tier `json:"-"`
}

// IsPhrasalVerb reports whether the entry was grouped as a phrasal or
// separable verb.
func (e Entry) IsPhrasalVerb() bool {
	return e.Unit == UnitPhrasal || e.Unit == UnitSeparable
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithBaseScore overrides the heuristic base score. Default: 0.86.
func WithBaseScore(s float64) Option {
	return func(e *Engine) { e.base = s }
}

// WithEchoScore overrides the fixed raw score for untranslated echoes.
// Default: 0.52.
func WithEchoScore(s float64) Option {
	return func(e *Engine) { e.echoScore = s }
}

// WithSeparableWindow sets how many pairs ahead the separable-verb rule
// searches for the detached prefix. Default: 3.
func WithSeparableWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.separableWindow = n
		}
	}
}

// WithMinCompoundLength sets the minimum rune length for the heuristic
// compound classification of capitalized German tokens. Default: 10.
func WithMinCompoundLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minCompoundLen = n
		}
	}
}

// Engine groups and scores raw pairs. It is read-only after construction and
// safe for concurrent use.
type Engine struct {
	lex *Lexicon

	base            float64
	shortBonus      float64
	longPenalty     float64
	positionBonus   float64
	phrasalPenalty  float64
	echoScore       float64
	echoSimilarity  float64
	separableWindow int
	minCompoundLen  int
}

// NewEngine returns an [Engine] reading from lex. A nil lex gets the
// built-in lexicon.
func NewEngine(lex *Lexicon, opts ...Option) *Engine {
	if lex == nil {
		lex = NewLexicon()
	}
	e := &Engine{
		lex:             lex,
		base:            0.86,
		shortBonus:      0.06,
		longPenalty:     0.05,
		positionBonus:   0.04,
		phrasalPenalty:  0.07,
		echoScore:       0.52,
		echoSimilarity:  0.96,
		separableWindow: 3,
		minCompoundLen:  10,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Align turns one style's raw pairs into the ordered entry list. sourceLang
// is the language of the pairs' source side (the original sentence's
// language); targetLang the language of their target side. An empty pair
// list returns nil — the caller falls back to whole-sentence presentation,
// it never invents placeholder entries.
func (a *Engine) Align(style styles.Style, sourceLang, targetLang styles.Language, pairs []extract.RawPair) []Entry {
	if len(pairs) == 0 {
		return nil
	}

	grouped := a.group(sourceLang, pairs)
	entries := make([]Entry, len(grouped))
	for i, g := range grouped {
		raw, conf, typ, tier := a.score(g, i, len(grouped), sourceLang, targetLang)
		entries[i] = Entry{
			Style:         style,
			Order:         i,
			SourcePhrase:  g.source,
			TargetPhrase:  g.target,
			Confidence:    conf,
			RawConfidence: raw,
			PhraseType:    typ,
			Unit:          g.unit,
			MultiWord:     strings.Contains(g.source, " "),
			Tier:          tier,
		}
	}
	return entries
}

// ── Stage 1: grouping ──

type groupedPair struct {
	source string
	target string
	unit   UnitKind
}

func (a *Engine) group(sourceLang styles.Language, pairs []extract.RawPair) []groupedPair {
	out := make([]groupedPair, 0, len(pairs))
	used := make([]bool, len(pairs))

	for i := 0; i < len(pairs); i++ {
		if used[i] {
			continue
		}
		p := pairs[i]
		toks := strings.Fields(p.Source)

		// Separable verb: stem pair here, detached prefix pair within the
		// window. The entry sits at the stem's position.
		if sourceLang == styles.German && len(toks) == 1 &&
			a.looksVerbal(sourceLang, toks[0]) && !a.lex.IsSeparablePrefix(sourceLang, toks[0]) {
			if j, ok := a.findSeparablePrefix(sourceLang, pairs, used, i); ok {
				out = append(out, groupedPair{
					source: p.Source + " " + pairs[j].Source,
					target: mergeTargets(p.Target, pairs[j].Target),
					unit:   UnitSeparable,
				})
				used[i], used[j] = true, true
				continue
			}
		}

		// Phrasal verb split across adjacent pairs: verb pair directly
		// followed by particle pairs, at most three source tokens total.
		if len(toks) == 1 && a.looksVerbal(sourceLang, toks[0]) && !a.lex.IsParticle(sourceLang, toks[0]) {
			srcParts := []string{p.Source}
			tgtParts := []string{p.Target}
			last := i
			for k := i + 1; k < len(pairs) && len(srcParts) < 3; k++ {
				if used[k] {
					break
				}
				kt := strings.Fields(pairs[k].Source)
				if len(kt) != 1 || !a.lex.IsParticle(sourceLang, kt[0]) {
					break
				}
				srcParts = append(srcParts, pairs[k].Source)
				tgtParts = append(tgtParts, pairs[k].Target)
				used[k] = true
				last = k
			}
			if last > i {
				out = append(out, groupedPair{
					source: strings.Join(srcParts, " "),
					target: mergeTargetList(tgtParts),
					unit:   UnitPhrasal,
				})
				used[i] = true
				continue
			}
		}

		out = append(out, groupedPair{
			source: p.Source,
			target: p.Target,
			unit:   a.classify(sourceLang, toks, p.Source),
		})
		used[i] = true
	}
	return out
}

// classify recognizes units that already arrived whole in one pair.
func (a *Engine) classify(sourceLang styles.Language, toks []string, source string) UnitKind {
	switch {
	case len(toks) == 1:
		if typ, ok := a.lex.PhraseTypeOf(sourceLang, source); ok {
			if typ == TypeCompound {
				return UnitCompound
			}
			return UnitNone
		}
		if sourceLang == styles.German && a.looksCompound(toks[0]) {
			return UnitCompound
		}
	case len(toks) == 2:
		if sourceLang == styles.German && a.lex.IsSeparablePrefix(sourceLang, toks[1]) && a.looksVerbal(sourceLang, toks[0]) {
			return UnitSeparable
		}
		if a.lex.IsParticle(sourceLang, toks[1]) && a.looksVerbal(sourceLang, toks[0]) {
			return UnitPhrasal
		}
	case len(toks) == 3:
		if a.lex.IsParticle(sourceLang, toks[1]) && a.lex.IsParticle(sourceLang, toks[2]) && a.looksVerbal(sourceLang, toks[0]) {
			return UnitPhrasal
		}
	}
	return UnitNone
}

// findSeparablePrefix scans ahead of the stem pair for a single-token pair
// whose source is a known separable prefix.
func (a *Engine) findSeparablePrefix(sourceLang styles.Language, pairs []extract.RawPair, used []bool, stem int) (int, bool) {
	limit := stem + a.separableWindow
	for j := stem + 1; j <= limit && j < len(pairs); j++ {
		if used[j] {
			continue
		}
		toks := strings.Fields(pairs[j].Source)
		if len(toks) == 1 && a.lex.IsSeparablePrefix(sourceLang, toks[0]) {
			return j, true
		}
	}
	return 0, false
}

// looksVerbal is a conservative, deterministic verb-shape test: lowercase
// start plus (for German) a typical conjugation ending. It only gates the
// grouping rules, which additionally require a matching prefix or particle
// pair, so false positives stay inert.
func (a *Engine) looksVerbal(lang styles.Language, token string) bool {
	runes := []rune(token)
	if len(runes) < 3 || !unicode.IsLower(runes[0]) {
		return false
	}
	if lang != styles.German {
		return true
	}
	t := strings.ToLower(token)
	for _, suffix := range []string{"e", "st", "t", "en", "te", "ten"} {
		if strings.HasSuffix(t, suffix) {
			return true
		}
	}
	return false
}

// looksCompound is the heuristic compound test for German: a capitalized
// agglutinated token long enough that it is very unlikely to be a simple
// noun.
func (a *Engine) looksCompound(token string) bool {
	runes := []rune(token)
	return len(runes) >= a.minCompoundLen && unicode.IsUpper(runes[0])
}

// mergeTargets joins a stem target with its prefix's target, skipping
// duplication when the backend already folded the particle in.
func mergeTargets(stem, prefix string) string {
	s := strings.TrimSpace(stem)
	p := strings.TrimSpace(prefix)
	switch {
	case p == "":
		return s
	case s == "":
		return p
	case strings.Contains(" "+strings.ToLower(s)+" ", " "+strings.ToLower(p)+" "):
		return s
	default:
		return s + " " + p
	}
}

func mergeTargetList(targets []string) string {
	merged := ""
	for _, t := range targets {
		merged = mergeTargets(merged, t)
	}
	return merged
}

// ── Stage 2: scoring ──

// score runs the tier cascade for one grouped entry and returns the raw
// score, the clamped confidence, the phrase type and the tier used.
func (a *Engine) score(g groupedPair, idx, total int, sourceLang, targetLang styles.Language) (raw, conf float64, typ PhraseType, tier Tier) {
	typ = phraseTypeFor(g.unit, g.source)

	if c, lexType, ok := a.lex.LookupPair(sourceLang, targetLang, g.source, g.target); ok {
		if lexType != "" {
			typ = lexType
		}
		return c, clamp(c), typ, TierLexicon
	}

	if a.isEcho(g.source, g.target) {
		return a.echoScore, clamp(a.echoScore), typ, TierEcho
	}

	raw = a.base
	srcRunes := len([]rune(g.source))
	singleToken := !strings.Contains(g.source, " ")
	if singleToken && srcRunes <= 3 {
		raw += a.shortBonus
	}
	if srcRunes >= 12 && g.unit != UnitCompound {
		raw -= a.longPenalty
	}
	if rel := (float64(idx) + 0.5) / float64(total); rel >= 0.2 && rel <= 0.8 {
		raw += a.positionBonus
	}
	if g.unit == UnitPhrasal || g.unit == UnitSeparable {
		raw -= a.phrasalPenalty
	}
	return raw, clamp(raw), typ, TierHeuristic
}

// isEcho reports whether target merely repeats source untranslated. Bracket
// wrapping lowers the similarity bar since it is the backend's own "no
// translation" convention.
func (a *Engine) isEcho(source, target string) bool {
	t := strings.TrimSpace(target)
	wrapped := strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")
	t = strings.Trim(t, "[]")

	s := strings.ToLower(strings.TrimSpace(source))
	t = strings.ToLower(strings.TrimSpace(t))
	if s == "" || t == "" {
		return false
	}
	sim := matchr.JaroWinkler(s, t, false)
	if wrapped {
		return sim >= 0.85
	}
	return sim >= a.echoSimilarity
}

func phraseTypeFor(unit UnitKind, source string) PhraseType {
	switch {
	case unit == UnitCompound:
		return TypeCompound
	case strings.Contains(strings.TrimSpace(source), " "):
		return TypePhrase
	default:
		return TypeWord
	}
}

func clamp(raw float64) float64 {
	switch {
	case raw < ConfidenceFloor:
		return ConfidenceFloor
	case raw > ConfidenceCeil:
		return ConfidenceCeil
	default:
		return raw
	}
}
