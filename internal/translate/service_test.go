package translate_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/MrWong99/lingocast/internal/styles"
	"github.com/MrWong99/lingocast/internal/translate"
	"github.com/MrWong99/lingocast/pkg/provider/llm"
	llmmock "github.com/MrWong99/lingocast/pkg/provider/llm/mock"
)

// twoStyleReply carries both requested sections; per-style calls parse their
// own section out of it, the combined call parses both.
const twoStyleReply = `### german_native ###
Sentence: Ananassaft für das Mädchen.
Pairs: Ananassaft (pineapple juice) | für (for) | das Mädchen (the girl)

### english_formal ###
Sentence: Pineapple juice for the girl, please.
Pairs: Ananassaft (pineapple juice) | für (for) | das Mädchen (the girl)
`

func testRequest() translate.Request {
	return translate.Request{
		Text:       "Ananassaft für das Mädchen",
		SourceLang: styles.German,
		TargetLang: styles.English,
		Prefs:      twoStylePrefs(),
	}
}

// stubCache implements translate.Cache with a single slot.
type stubCache struct {
	stored *translate.Translation
	hit    bool
	calls  int
}

func (c *stubCache) GetOrCompute(ctx context.Context, _ translate.Request, compute translate.ComputeFunc) (*translate.Translation, bool, error) {
	c.calls++
	if c.hit {
		return c.stored, true, nil
	}
	t, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.stored = t
	return t, false, nil
}

// stubNarrator implements translate.Narrator and records its input.
type stubNarrator struct {
	ref string
	err error
	got *translate.Translation
}

func (n *stubNarrator) Narrate(_ context.Context, t *translate.Translation, _ styles.Preferences) (string, error) {
	n.got = t
	return n.ref, n.err
}

func TestServiceTranslatePerStyle(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	svc := translate.NewService(backend, nil, nil)

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	calls := backend.Calls()
	if len(calls) != 2 {
		t.Fatalf("backend calls = %d, want 2 (one per style)", len(calls))
	}
	for _, c := range calls {
		if c.Req.Prompt != "Ananassaft für das Mädchen" {
			t.Errorf("Prompt = %q, want the raw sentence", c.Req.Prompt)
		}
		if !strings.Contains(c.Req.System, "german_native") && !strings.Contains(c.Req.System, "english_formal") {
			t.Errorf("System directive names no requested style:\n%s", c.Req.System)
		}
	}

	if len(tr.Sentences) != 2 {
		t.Fatalf("Sentences = %v, want both styles", tr.Sentences)
	}
	if tr.PrimaryStyle != germanNative {
		t.Errorf("PrimaryStyle = %v, want %v", tr.PrimaryStyle, germanNative)
	}
	entries := tr.EntriesFor(germanNative)
	if len(entries) != 3 {
		t.Fatalf("german entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Order != i {
			t.Errorf("entries[%d].Order = %d, want %d", i, e.Order, i)
		}
		if e.Confidence < 0.80 || e.Confidence > 1.00 {
			t.Errorf("entries[%d].Confidence = %v, want within [0.80, 1.00]", i, e.Confidence)
		}
	}
	if entries[0].SourcePhrase != "Ananassaft" || entries[0].Confidence < 0.90 {
		t.Errorf("compound entry = %+v, want Ananassaft at >= 0.90", entries[0])
	}
}

func TestServiceTranslateCombined(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	svc := translate.NewService(backend, nil, nil, translate.WithCombined(true))

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := len(backend.Calls()); got != 1 {
		t.Fatalf("backend calls = %d, want 1 combined call", got)
	}
	if len(tr.Sentences) != 2 {
		t.Errorf("Sentences = %v, want both styles from one reply", tr.Sentences)
	}
}

func TestServiceTranslateBestEffort(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			if strings.Contains(req.System, "english_formal") {
				return nil, errors.New("backend down")
			}
			return &llm.Response{Text: twoStyleReply}, nil
		},
	}
	svc := translate.NewService(backend, nil, nil)

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v (errored style must be omitted, not fatal)", err)
	}
	if _, ok := tr.Sentence(germanNative); !ok {
		t.Error("surviving style missing from aggregate")
	}
	if _, ok := tr.Sentence(englishFormal); ok {
		t.Error("errored style present in aggregate")
	}
}

func TestServiceTranslateAllStylesFail(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Err: errors.New("backend down")}
	svc := translate.NewService(backend, nil, nil)

	_, err := svc.Translate(context.Background(), testRequest())
	if !errors.Is(err, translate.ErrNoStyles) {
		t.Fatalf("err = %v, want ErrNoStyles when nothing survived", err)
	}
}

func TestServiceTranslateInvalidRequest(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	svc := translate.NewService(backend, nil, nil)

	req := testRequest()
	req.Text = "   "
	_, err := svc.Translate(context.Background(), req)
	if !errors.Is(err, translate.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if got := len(backend.Calls()); got != 0 {
		t.Errorf("backend called %d times for invalid input, want 0", got)
	}

	req = testRequest()
	req.Prefs.Styles = nil
	if _, err := svc.Translate(context.Background(), req); !errors.Is(err, translate.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest for empty style list", err)
	}
}

func TestServiceParseMissDropsStyle(t *testing.T) {
	t.Parallel()

	// Reply carries only the german section; the english style's parse
	// misses and the style is dropped while the rest of the result stands.
	reply := `### german_native ###
Sentence: Ananassaft für das Mädchen.
Pairs: Ananassaft (pineapple juice) | für (for) | das Mädchen (the girl)
`
	backend := &llmmock.Provider{Response: &llm.Response{Text: reply}}
	svc := translate.NewService(backend, nil, nil)

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if _, ok := tr.Sentence(englishFormal); ok {
		t.Error("style with missing section present in aggregate")
	}
	if got := tr.EntriesFor(germanNative); len(got) != 3 {
		t.Errorf("surviving style entries = %d, want 3", len(got))
	}
}

func TestServiceNarratorReceivesAggregateList(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	narrator := &stubNarrator{ref: "9f31.mp3"}
	svc := translate.NewService(backend, nil, nil, translate.WithNarrator(narrator))

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if tr.AudioRef != "9f31.mp3" {
		t.Errorf("AudioRef = %q, want %q", tr.AudioRef, "9f31.mp3")
	}
	if narrator.got == nil {
		t.Fatal("narrator not invoked")
	}

	// The narrator iterated the exact list the returned aggregate exposes.
	narrated := narrator.got.EntriesFor(germanNative)
	exposed := tr.EntriesFor(germanNative)
	if &narrated[0] != &exposed[0] {
		t.Error("narration script list and exposed list are different arrays")
	}
}

func TestServiceNarratorFailureKeepsText(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	narrator := &stubNarrator{err: errors.New("synthesis down")}
	svc := translate.NewService(backend, nil, nil, translate.WithNarrator(narrator))

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v (narration failure must not fail the request)", err)
	}
	if tr.AudioRef != "" {
		t.Errorf("AudioRef = %q, want empty after narration failure", tr.AudioRef)
	}
	if len(tr.Sentences) != 2 {
		t.Errorf("text results lost: Sentences = %v", tr.Sentences)
	}
}

func TestServiceCacheHitSkipsCompute(t *testing.T) {
	t.Parallel()

	stored := &translate.Translation{
		OriginalText: "Ananassaft für das Mädchen",
		PrimaryStyle: germanNative,
		Sentences:    map[string]string{germanNative.ID(): "Ananassaft für das Mädchen."},
	}
	cache := &stubCache{hit: true, stored: stored}
	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	svc := translate.NewService(backend, nil, nil, translate.WithCache(cache))

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if tr != stored {
		t.Error("cache hit did not return the stored aggregate unchanged")
	}
	if got := len(backend.Calls()); got != 0 {
		t.Errorf("backend called %d times on cache hit, want 0", got)
	}
}

func TestServiceCacheMissComputes(t *testing.T) {
	t.Parallel()

	cache := &stubCache{}
	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	svc := translate.NewService(backend, nil, nil, translate.WithCache(cache))

	tr, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if cache.calls != 1 {
		t.Errorf("cache consulted %d times, want 1", cache.calls)
	}
	if len(backend.Calls()) == 0 {
		t.Error("backend never called on cache miss")
	}
	if cache.stored != tr {
		t.Error("computed aggregate not handed to the cache")
	}
}

func TestServiceIdempotence(t *testing.T) {
	t.Parallel()

	backend := &llmmock.Provider{Response: &llm.Response{Text: twoStyleReply}}
	svc := translate.NewService(backend, nil, nil)

	first, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first Translate: %v", err)
	}
	second, err := svc.Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second Translate: %v", err)
	}

	if !reflect.DeepEqual(first.Sentences, second.Sentences) {
		t.Errorf("Sentences differ between identical requests:\n%v\n%v", first.Sentences, second.Sentences)
	}
	if !reflect.DeepEqual(first.Entries, second.Entries) {
		t.Errorf("Entries differ between identical requests:\n%v\n%v", first.Entries, second.Entries)
	}
}
