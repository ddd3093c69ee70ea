package translate

import (
	"errors"
	"fmt"

	"github.com/MrWong99/lingocast/internal/align"
	"github.com/MrWong99/lingocast/internal/extract"
	"github.com/MrWong99/lingocast/internal/styles"
)

// ErrNoStyles is returned by [Assemble] when not a single enabled style
// survived parsing. It is the only fatal outcome of assembly; every partial
// result assembles successfully.
var ErrNoStyles = errors.New("translate: no style produced")

// Assemble builds the immutable [Translation] aggregate from the parsed
// sections and their aligned entries.
//
// Assembly is where the synchronization guarantee is established: each
// style's entry list is copied once, its orders re-assigned to the contiguous
// sequence 0..N-1, and stored as the single list both the UI payload and the
// narration script iterate. A style present in sections but absent from
// aligned (or with an empty entry list) stays in the aggregate with no
// entries; consumers fall back to whole-sentence presentation and never
// invent placeholder pairs.
//
// Entries for styles without a parsed section are discarded: a section exists
// iff the style was enabled and parsed, and the aggregate mirrors exactly
// that set.
func Assemble(original string, sourceLang styles.Language, prefs styles.Preferences, sections []extract.Section, aligned map[string][]align.Entry) (*Translation, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no sections for %d requested style(s)", ErrNoStyles, len(prefs.Styles))
	}

	sentences := make(map[string]string, len(sections))
	entries := make(map[string][]align.Entry, len(sections))
	present := make([]styles.Style, 0, len(sections))

	for _, sec := range sections {
		id := sec.Style.ID()
		if _, dup := sentences[id]; dup {
			continue
		}
		sentences[id] = sec.Sentence
		present = append(present, sec.Style)

		if list := aligned[id]; len(list) > 0 {
			entries[id] = sealEntries(sec.Style, list)
		}
	}

	primary, ok := styles.PickPrimary(present)
	if !ok {
		return nil, ErrNoStyles
	}

	return &Translation{
		OriginalText: original,
		SourceLang:   sourceLang,
		PrimaryStyle: primary,
		Sentences:    sentences,
		Entries:      entries,
	}, nil
}

// sealEntries copies a style's entry list into the aggregate and asserts
// final ownership of the order sequence: entries keep their relative order
// and get contiguous orders 0..N-1 and the owning style stamped on. The copy
// keeps later caller-side slice mutations out of the aggregate.
func sealEntries(style styles.Style, list []align.Entry) []align.Entry {
	sealed := make([]align.Entry, len(list))
	copy(sealed, list)
	for i := range sealed {
		sealed[i].Style = style
		sealed[i].Order = i
	}
	return sealed
}
