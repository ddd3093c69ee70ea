// Package extract parses the generative backend's raw reply into per-style
// sections. The reply is treated as an untrusted external protocol with a
// best-effort grammar: sections may be reordered, decorated, partially
// missing or wrapped in markdown, and none of that is an error for the
// request as a whole.
//
// Parsing proceeds in four stages:
//
//  1. Cleanup: markdown code fences are stripped so a fully fenced reply
//     parses the same as a bare one.
//
//  2. Section split: every line is tested against a tolerant header grammar
//     ("### german_native ###", "German (native):", "NATIVE GERMAN", ...).
//     Header lines partition the reply into per-style bodies; text before
//     the first header belongs to no section.
//
//  3. Sentence capture: within a body, a labelled "Sentence:" line wins;
//     otherwise the first non-empty line that is not a pair list is taken.
//     A body without a sentence drops the style (a warning, never an error).
//
//  4. Pair capture: the style's pair block is located by label ("Pairs:",
//     "Word-by-word:", ...) and scanned for source (target) tokens with a
//     depth-aware bracket walk, so multi-word phrases and nested
//     parentheses survive. Without a label, only lines that consist
//     entirely of pair tokens are considered. Null-equivalent markers are
//     skipped and duplicates removed, first occurrence wins.
package extract

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/MrWong99/lingocast/internal/styles"
)

// RawPair is one unscored source (target) token as found in the reply.
type RawPair struct {
	Source string
	Target string
}

// Section is the parsed material for one enabled style: the rendered
// sentence and the raw, unscored pair candidates. A Section exists only when
// the style's sentence was found; Pairs may be empty.
type Section struct {
	Style    styles.Style
	Sentence string
	Pairs    []RawPair
}

// defaultNullMarkers are target tokens that mean "no equivalent". They are
// compared case-insensitively after trimming decoration.
var defaultNullMarkers = []string{"-", "–", "—", "n/a", "na", "none", "null", "nil", "?"}

// Option is a functional option for configuring a [Parser].
type Option func(*Parser)

// WithNullMarkers adds additional "no equivalent" target markers to the
// built-in set.
func WithNullMarkers(markers ...string) Option {
	return func(p *Parser) {
		for _, m := range markers {
			p.nullMarkers[strings.ToLower(strings.TrimSpace(m))] = true
		}
	}
}

// Parser extracts per-style sections from backend replies. It is read-only
// after construction and safe for concurrent use.
type Parser struct {
	nullMarkers map[string]bool
}

// New returns a [Parser] with the built-in null-marker set plus any options.
func New(opts ...Option) *Parser {
	p := &Parser{nullMarkers: make(map[string]bool, len(defaultNullMarkers))}
	for _, m := range defaultNullMarkers {
		p.nullMarkers[m] = true
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse extracts one [Section] per enabled style found in raw. Sections are
// returned in the preferences' enable order regardless of their order in the
// reply. Styles whose section is missing are dropped with a warning; styles
// present in the reply but not enabled are ignored.
func (p *Parser) Parse(raw string, prefs styles.Preferences) []Section {
	bodies := splitSections(stripFences(raw))

	out := make([]Section, 0, len(prefs.Styles))
	for _, s := range prefs.Styles {
		body, ok := bodies[s]
		if !ok {
			slog.Warn("extract: section missing from reply", "style", s.ID())
			continue
		}
		sec, ok := p.buildSection(s, body)
		if !ok {
			slog.Warn("extract: section has no sentence", "style", s.ID())
			continue
		}
		out = append(out, sec)
	}
	return out
}

// ParseStyle extracts a single style's section. It first looks for the
// style's header; when the reply carries no header at all (a common shape
// for single-style requests) the whole reply is treated as the body.
func (p *Parser) ParseStyle(raw string, style styles.Style) (Section, bool) {
	cleaned := stripFences(raw)
	bodies := splitSections(cleaned)

	if body, ok := bodies[style]; ok {
		if sec, ok := p.buildSection(style, body); ok {
			return sec, true
		}
		slog.Warn("extract: section has no sentence", "style", style.ID())
		return Section{}, false
	}
	if len(bodies) == 0 {
		if sec, ok := p.buildSection(style, strings.Split(cleaned, "\n")); ok {
			return sec, true
		}
	}
	slog.Warn("extract: section missing from reply", "style", style.ID())
	return Section{}, false
}

// buildSection captures the sentence and pair list from a section body.
func (p *Parser) buildSection(style styles.Style, body []string) (Section, bool) {
	sentence, sentenceLine, ok := extractSentence(body)
	if !ok {
		return Section{}, false
	}
	return Section{
		Style:    style,
		Sentence: sentence,
		Pairs:    p.extractPairs(body, sentenceLine),
	}, true
}

// ── Stage 1: cleanup ──

// stripFences removes markdown code-fence lines so fenced replies parse the
// same as bare ones.
func stripFences(raw string) string {
	lines := strings.Split(raw, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// ── Stage 2: section split ──

// headerRx matches a style header token at the start of a (pre-trimmed)
// line: "german_native", "german (native)", "native german", with space,
// underscore or hyphen separators. Groups: 1=lang 2=reg (lang-first) or
// 3=reg 4=lang (reg-first).
var headerRx = buildHeaderRx()

func buildHeaderRx() *regexp.Regexp {
	var langs, regs []string
	for _, l := range styles.Languages() {
		langs = append(langs, regexp.QuoteMeta(l.Name()), regexp.QuoteMeta(string(l)))
	}
	for _, r := range styles.Registers() {
		regs = append(regs, regexp.QuoteMeta(string(r)))
	}
	lang := "(" + strings.Join(langs, "|") + ")"
	reg := "(" + strings.Join(regs, "|") + ")"
	return regexp.MustCompile(`(?i)^(?:` + lang + `[ _\-]*\(?[ \t]*` + reg + `[ \t]*\)?|` + reg + `[ _\-]+` + lang + `)`)
}

// splitSections partitions the reply into per-style bodies keyed by style.
// The first header found for a style wins; later duplicates are appended to
// the same body.
func splitSections(text string) map[styles.Style][]string {
	bodies := make(map[styles.Style][]string)
	var current *styles.Style

	for _, line := range strings.Split(text, "\n") {
		if style, rest, ok := matchHeader(line); ok {
			current = &style
			if _, exists := bodies[style]; !exists {
				bodies[style] = nil
			}
			if rest != "" {
				bodies[style] = append(bodies[style], rest)
			}
			continue
		}
		if current != nil {
			bodies[*current] = append(bodies[*current], line)
		}
	}
	return bodies
}

// stripMarkers removes leading markdown decoration (#, **, *, =) from s and
// reports whether any was present.
func stripMarkers(s string) (string, bool) {
	out := strings.TrimSpace(s)
	marked := false
	for {
		switch {
		case strings.HasPrefix(out, "#"):
			out = strings.TrimLeft(out, "#")
		case strings.HasPrefix(out, "**"):
			out = strings.TrimPrefix(out, "**")
		case strings.HasPrefix(out, "*"), strings.HasPrefix(out, "="):
			out = strings.TrimLeft(out, "*=")
		default:
			return strings.TrimSpace(out), marked
		}
		marked = true
		out = strings.TrimSpace(out)
	}
}

// matchHeader reports whether line is a style section header. rest carries
// any content that followed an explicit colon on the header line.
//
// A header token followed by further prose is only accepted as a header when
// the line carried explicit markers (#, **) or a colon; this keeps ordinary
// sentences that merely start with "German native ..." out of the section
// grammar.
func matchHeader(line string) (styles.Style, string, bool) {
	trimmed, marked := stripMarkers(line)

	m := headerRx.FindStringSubmatch(trimmed)
	if m == nil {
		return styles.Style{}, "", false
	}
	langTok, regTok := m[1], m[2]
	if langTok == "" {
		regTok, langTok = m[3], m[4]
	}
	lang, err := styles.ParseLanguage(langTok)
	if err != nil {
		return styles.Style{}, "", false
	}
	style := styles.Style{Language: lang, Register: styles.Register(strings.ToLower(regTok))}

	remainder, remMarked := stripMarkers(trimmed[len(m[0]):])
	marked = marked || remMarked

	hadColon := strings.HasPrefix(remainder, ":")
	rest := strings.TrimSpace(strings.TrimPrefix(remainder, ":"))
	rest = strings.TrimSpace(strings.TrimRight(rest, "*#"))
	if rest != "" && !hadColon && !marked {
		// Prose that merely begins with a style-like token.
		return styles.Style{}, "", false
	}
	return style, rest, true
}

// ── Stage 3: sentence capture ──

// sentenceLabelRx matches an explicit sentence label at the start of a line.
var sentenceLabelRx = regexp.MustCompile(`(?i)^[ \t]*(?:\*\*)?[ \t]*(?:sentence|translation|satz)[ \t]*(?:\*\*)?[ \t]*:[ \t]*(.*)$`)

// pairLabelRx matches an explicit pair-block label at the start of a line.
// Trailing content is only accepted after a colon, so prose that merely
// begins with "pair" is not mistaken for a label.
var pairLabelRx = regexp.MustCompile(`(?i)^[ \t]*(?:\*\*)?[ \t]*(?:word[ \-]?(?:by[ \-]?word|pairs?)|pairs?|breakdown|wort für wort)[ \t]*(?:\*\*)?[ \t]*(?::[ \t]*(.*))?$`)

// extractSentence returns the section's sentence and the body line it came
// from. A labelled line wins; the fallback is the first non-empty line that
// is neither a pair label nor a pure pair list.
func extractSentence(body []string) (string, int, bool) {
	for i, line := range body {
		if m := sentenceLabelRx.FindStringSubmatch(line); m != nil {
			if s := cleanSentence(m[1]); s != "" {
				return s, i, true
			}
			// Label on its own line; the sentence follows.
			for j := i + 1; j < len(body); j++ {
				if pairLabelRx.MatchString(body[j]) {
					break
				}
				if s := cleanSentence(body[j]); s != "" {
					return s, j, true
				}
			}
		}
	}
	for i, line := range body {
		if pairLabelRx.MatchString(line) {
			// Everything from the pair label on belongs to the pair block.
			break
		}
		if isPairLine(line) {
			continue
		}
		if s := cleanSentence(line); s != "" {
			return s, i, true
		}
	}
	return "", -1, false
}

// cleanSentence trims decoration and wrapping quotes from a sentence line.
func cleanSentence(line string) string {
	s := strings.TrimSpace(line)
	s = strings.Trim(s, "*")
	s = strings.TrimSpace(s)
	for _, q := range []struct{ open, close string }{
		{`"`, `"`}, {"„", "“"}, {"“", "”"}, {"'", "'"}, {"«", "»"},
	} {
		if strings.HasPrefix(s, q.open) && strings.HasSuffix(s, q.close) && len(s) > len(q.open)+len(q.close) {
			s = strings.TrimSuffix(strings.TrimPrefix(s, q.open), q.close)
			break
		}
	}
	return strings.TrimSpace(s)
}

// ── Stage 4: pair capture ──

// extractPairs collects the style's raw pairs. A labelled pair block claims
// every line from the label to the end of the body; without a label only
// lines made purely of pair tokens are scanned. sentenceLine is excluded
// from the unlabelled scan.
func (p *Parser) extractPairs(body []string, sentenceLine int) []RawPair {
	var scanned []scannedPair

	labelAt := -1
	for i, line := range body {
		if m := pairLabelRx.FindStringSubmatch(line); m != nil {
			labelAt = i
			scanned = scanPairs(m[1])
			break
		}
	}

	if labelAt >= 0 {
		for _, line := range body[labelAt+1:] {
			scanned = append(scanned, scanPairs(line)...)
		}
	} else {
		for i, line := range body {
			if i == sentenceLine || !isPairLine(line) {
				continue
			}
			scanned = append(scanned, scanPairs(line)...)
		}
	}

	pairs := make([]RawPair, 0, len(scanned))
	seen := make(map[string]bool, len(scanned))
	for _, sp := range scanned {
		target := strings.TrimSpace(sp.pair.Target)
		if p.isNullMarker(target) {
			continue
		}
		key := strings.ToLower(sp.pair.Source) + "\x1f" + strings.ToLower(target)
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, RawPair{Source: sp.pair.Source, Target: target})
	}
	return pairs
}

// isNullMarker reports whether target means "no equivalent". Decoration
// (brackets, trailing period) is stripped before the comparison.
func (p *Parser) isNullMarker(target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	t = strings.Trim(t, "[]")
	t = strings.TrimSuffix(t, ".")
	t = strings.TrimSpace(t)
	return t == "" || p.nullMarkers[t]
}

// scannedPair is a pair plus the rune span it consumed, used by
// [isPairLine] to decide whether a line is purely a pair list.
type scannedPair struct {
	pair       RawPair
	start, end int
}

// scanPairs walks text emitting source (target) tokens. The bracket walk is
// depth-aware so nested parentheses stay inside the target. Separators
// (| ; , and newline) reset the source accumulator.
func scanPairs(text string) []scannedPair {
	runes := []rune(text)
	var out []scannedPair

	srcStart := 0
	srcBegun := false
	var src []rune

	reset := func(next int) {
		src = src[:0]
		srcBegun = false
		srcStart = next
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '(':
			depth := 1
			j := i + 1
			for ; j < len(runes) && depth > 0; j++ {
				switch runes[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
			}
			endInner := j
			if depth == 0 {
				endInner = j - 1 // exclude the closing paren
			}
			source := cleanSourcePhrase(string(src))
			if source != "" {
				out = append(out, scannedPair{
					pair:  RawPair{Source: source, Target: strings.TrimSpace(string(runes[i+1 : endInner]))},
					start: srcStart,
					end:   j,
				})
			}
			i = j - 1
			reset(j)
		case r == '|' || r == ';' || r == ',' || r == '\n':
			reset(i + 1)
		default:
			if !srcBegun && !unicode.IsSpace(r) {
				srcBegun = true
				srcStart = i
			}
			src = append(src, r)
		}
	}
	return out
}

// cleanSourcePhrase normalizes the source side of a pair token: bullets,
// list numbering and wrapping decoration are stripped, inner whitespace
// collapsed. Returns "" when nothing word-like remains.
func cleanSourcePhrase(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*•>")
	s = strings.TrimSpace(s)
	// list numbering: "1." or "2)"
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 2 && isDigits(s[:i]) {
		s = strings.TrimSpace(s[i+1:])
	}
	s = strings.Trim(s, `"'`)
	s = strings.Join(strings.Fields(s), " ")
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return s
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// isPairLine reports whether a line consists solely of pair tokens and
// separators, i.e. removing every scanned pair span leaves no letters. Used
// only for the unlabelled fallback so prose containing a parenthesis is not
// mistaken for a pair list.
func isPairLine(line string) bool {
	scanned := scanPairs(line)
	if len(scanned) == 0 {
		return false
	}
	runes := []rune(line)
	consumed := make([]bool, len(runes))
	for _, sp := range scanned {
		if len(strings.Fields(sp.pair.Source)) > 4 {
			return false
		}
		for i := sp.start; i < sp.end && i < len(runes); i++ {
			consumed[i] = true
		}
	}
	for i, r := range runes {
		if !consumed[i] && unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
