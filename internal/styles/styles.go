// Package styles defines the language/register model of the translation
// pipeline: which output renderings a request asks for, how those renderings
// are identified on the wire ("german_native", "english_formal", ...), and
// which language the word-by-word pairs of a rendering map to.
//
// A [Style] is a language plus a register. Styles are enabled per request
// through [Preferences]; the order in which styles were enabled is preserved
// because it participates in the primary-style tie-break (see [PickPrimary]).
package styles

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Language is an ISO 639-1 language code ("de", "en", ...).
type Language string

// Languages known to the pipeline. The directive compiler and the alignment
// lexicon carry per-language rules only for these.
const (
	German  Language = "de"
	English Language = "en"
	Spanish Language = "es"
	French  Language = "fr"
)

// languageNames maps a code to the lowercase English name used in style IDs
// and directive text.
var languageNames = map[Language]string{
	German:  "german",
	English: "english",
	Spanish: "spanish",
	French:  "french",
}

// Name returns the lowercase English name of the language ("german").
// Unknown languages return their code unchanged.
func (l Language) Name() string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return string(l)
}

// Known reports whether the language is one the pipeline has rules for.
func (l Language) Known() bool {
	_, ok := languageNames[l]
	return ok
}

// ParseLanguage accepts either an ISO 639-1 code ("de") or an English
// language name ("german", case-insensitive) and returns the Language.
func ParseLanguage(s string) (Language, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return "", errors.New("styles: empty language")
	}
	if _, ok := languageNames[Language(in)]; ok {
		return Language(in), nil
	}
	for code, name := range languageNames {
		if name == in {
			return code, nil
		}
	}
	return "", fmt.Errorf("styles: unknown language %q", s)
}

// Register is a speech register within a language.
type Register string

// Registers, ordered here by primary-style priority (highest first).
const (
	Native     Register = "native"
	Formal     Register = "formal"
	Informal   Register = "informal"
	Colloquial Register = "colloquial"
)

// registerPriority orders registers for the primary-style tie-break.
// Lower value wins.
var registerPriority = map[Register]int{
	Native:     0,
	Formal:     1,
	Informal:   2,
	Colloquial: 3,
}

// Known reports whether the register is one of the four supported values.
func (r Register) Known() bool {
	_, ok := registerPriority[r]
	return ok
}

// Languages returns the known languages sorted by code.
func Languages() []Language {
	langs := make([]Language, 0, len(languageNames))
	for l := range languageNames {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Registers returns the known registers in primary-style priority order.
func Registers() []Register {
	return []Register{Native, Formal, Informal, Colloquial}
}

// Style is one requested output rendering: a language plus a register.
type Style struct {
	Language Language
	Register Register
}

// ID returns the wire identifier of the style, e.g. "german_native".
func (s Style) ID() string {
	return s.Language.Name() + "_" + string(s.Register)
}

// String returns the same value as [Style.ID].
func (s Style) String() string { return s.ID() }

// ParseID parses a wire identifier such as "english_formal" back into a
// [Style]. Matching is case-insensitive.
func ParseID(id string) (Style, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(id)), "_", 2)
	if len(parts) != 2 {
		return Style{}, fmt.Errorf("styles: malformed style id %q", id)
	}
	lang, err := ParseLanguage(parts[0])
	if err != nil {
		return Style{}, fmt.Errorf("styles: style id %q: %w", id, err)
	}
	reg := Register(parts[1])
	if !reg.Known() {
		return Style{}, fmt.Errorf("styles: style id %q: unknown register %q", id, parts[1])
	}
	return Style{Language: lang, Register: reg}, nil
}

// Preferences describes which styles a request enables, which languages get
// word-by-word narration, and the requester's mother tongue.
//
// Styles preserves enable order. [Preferences.Enable] keeps the list
// duplicate-free; callers constructing the struct literally should do the
// same.
type Preferences struct {
	// Styles lists the enabled styles in the order they were requested.
	Styles []Style

	// WordByWord toggles phrase-by-phrase narration per language. A language
	// absent from the map has narration off.
	WordByWord map[Language]bool

	// MotherTongue is the requester's own language; same-language styles
	// pair their phrases against it. Empty defaults to English.
	MotherTongue Language
}

// Enable appends s to the enabled styles unless it is already present.
func (p *Preferences) Enable(s Style) {
	if p.Has(s) {
		return
	}
	p.Styles = append(p.Styles, s)
}

// Has reports whether s is enabled.
func (p Preferences) Has(s Style) bool {
	for _, e := range p.Styles {
		if e == s {
			return true
		}
	}
	return false
}

// Tongue returns MotherTongue, defaulting to [English] when unset.
func (p Preferences) Tongue() Language {
	if p.MotherTongue == "" {
		return English
	}
	return p.MotherTongue
}

// Validate checks the hard invariants: at least one style enabled, every
// language and register known, no duplicate styles. All violations are
// collected and joined.
func (p Preferences) Validate() error {
	var errs []error
	if len(p.Styles) == 0 {
		errs = append(errs, errors.New("no style selected"))
	}
	seen := make(map[Style]bool, len(p.Styles))
	for _, s := range p.Styles {
		if !s.Language.Known() {
			errs = append(errs, fmt.Errorf("style %q: unknown language %q", s.ID(), s.Language))
		}
		if !s.Register.Known() {
			errs = append(errs, fmt.Errorf("style %q: unknown register %q", s.ID(), s.Register))
		}
		if seen[s] {
			errs = append(errs, fmt.Errorf("style %q enabled twice", s.ID()))
		}
		seen[s] = true
	}
	for lang := range p.WordByWord {
		if !lang.Known() {
			errs = append(errs, fmt.Errorf("word-by-word toggle for unknown language %q", lang))
		}
	}
	if p.MotherTongue != "" && !p.MotherTongue.Known() {
		errs = append(errs, fmt.Errorf("unknown mother tongue %q", p.MotherTongue))
	}
	return errors.Join(errs...)
}

// Canonical returns a stable textual form of the preferences for cache-key
// hashing. Style order is preserved (it determines the primary style and is
// therefore part of the request's meaning); word-by-word toggles are sorted
// by language code.
func (p Preferences) Canonical() string {
	var b strings.Builder
	b.WriteString("styles=")
	for i, s := range p.Styles {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.ID())
	}
	langs := make([]string, 0, len(p.WordByWord))
	for lang, on := range p.WordByWord {
		if on {
			langs = append(langs, string(lang))
		}
	}
	sort.Strings(langs)
	b.WriteString(";wbw=")
	b.WriteString(strings.Join(langs, ","))
	b.WriteString(";mt=")
	b.WriteString(string(p.Tongue()))
	return b.String()
}

// PickPrimary selects the style whose sentence is surfaced outside the
// per-style map. Register priority is native > formal > informal >
// colloquial; between styles of equal register the earlier enabled one wins.
// Fallback is the first style present. ok is false only for an empty list.
func PickPrimary(present []Style) (Style, bool) {
	if len(present) == 0 {
		return Style{}, false
	}
	best := present[0]
	for _, s := range present[1:] {
		if registerPriority[s.Register] < registerPriority[best.Register] {
			best = s
		}
	}
	return best, true
}
