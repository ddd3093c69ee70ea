package styles

import (
	"fmt"
	"strings"
)

// directivePreamble is the fixed instruction header sent to the generative
// backend. The section layout described here is the same layout the reply
// parser expects; changing one side requires changing the other.
const directivePreamble = `You are a translation assistant for language learners.

The learner's sentence is written in %s. Produce exactly one section per
requested style below, each in this literal layout:

### <style id> ###
Sentence: <the sentence rendered in that style>
Pairs: <phrase> (<equivalent>) | <phrase> (<equivalent>) | ...

Rules:
- Keep the pairs in the order the phrases appear in the learner's sentence.
- Treat compound nouns, separable verbs and phrasal verbs as ONE pair each.
- Write "-" as the equivalent of a phrase that has no counterpart.
- Do not add commentary, notes or markdown outside the sections.

Requested styles:
`

// registerDescriptions phrases each register for the backend instruction.
var registerDescriptions = map[Register]string{
	Native:     "the natural phrasing a native speaker would use day to day",
	Formal:     "polite, grammatically complete phrasing",
	Informal:   "casual phrasing used among friends",
	Colloquial: "relaxed, slang-leaning phrasing",
}

// PairTarget returns the language a style's word pairs map to: styles in the
// sentence's own language pair against the mother tongue, cross-language
// styles pair against the style's language.
func PairTarget(s Style, p Preferences, sourceLang Language) Language {
	if s.Language == sourceLang {
		return p.Tongue()
	}
	return s.Language
}

// CompileDirective builds the complete backend instruction for every enabled
// style in p. The output is deterministic: styles appear in enable order and
// no request-independent state is consulted.
func CompileDirective(p Preferences, sourceLang Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, directivePreamble, sourceLang.Name())
	for i, s := range p.Styles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, styleRequestLine(s, p, sourceLang))
	}
	return b.String()
}

// CompileStyleDirective builds the instruction for a single style. Used when
// the pipeline issues one backend call per style instead of a combined call.
func CompileStyleDirective(s Style, p Preferences, sourceLang Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, directivePreamble, sourceLang.Name())
	fmt.Fprintf(&b, "1. %s\n", styleRequestLine(s, p, sourceLang))
	return b.String()
}

// styleRequestLine renders the per-style request bullet, naming the section
// id, the register description and the pairing direction.
func styleRequestLine(s Style, p Preferences, sourceLang Language) string {
	target := PairTarget(s, p, sourceLang)
	var render string
	if s.Language == sourceLang {
		render = fmt.Sprintf("rewrite the sentence in %s using %s", s.Language.Name(), registerDescriptions[s.Register])
	} else {
		render = fmt.Sprintf("translate the sentence into %s using %s", s.Language.Name(), registerDescriptions[s.Register])
	}
	return fmt.Sprintf("%s — %s; pair each %s phrase of the original sentence with its %s equivalent.",
		s.ID(), render, sourceLang.Name(), target.Name())
}
