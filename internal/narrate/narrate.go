// Package narrate renders translation aggregates into spoken audio.
//
// A narration covers the primary style's sentence and, for every style whose
// language has word-by-word narration toggled on, that style's phrase pairs
// spoken as "source, pause, equivalent, pause". The script iterates the
// aggregate's own entry lists, so the listener hears exactly the sequence the
// UI displays — same phrases, same order, same grouping.
//
// Narration is best-effort throughout: synthesis or storage failures degrade
// to a missing audio reference and a warning, never to a failed translation.
package narrate

import (
	"context"
	"time"

	"github.com/MrWong99/lingocast/internal/observe"
	"github.com/MrWong99/lingocast/internal/styles"
	"github.com/MrWong99/lingocast/internal/translate"
	"github.com/MrWong99/lingocast/pkg/provider/tts"
)

// DefaultTimeout bounds one synthesis round trip.
const DefaultTimeout = 60 * time.Second

// Pause lengths of the narration cadence. The values keep the breakdown easy
// to shadow: a beat between a phrase and its equivalent, a longer beat before
// the next pair.
const (
	sentencePause = 800 * time.Millisecond
	pairPause     = 350 * time.Millisecond
	entryPause    = 650 * time.Millisecond
)

// ArtifactStore persists a finished synthesis and returns its reference.
// Implemented by [internal/audiostore.Store].
type ArtifactStore interface {
	Put(audio *tts.Audio) (string, error)
}

// Option is a functional option for [New].
type Option func(*Narrator)

// WithVoice sets the voice requested from the speech backend.
func WithVoice(voice string) Option {
	return func(n *Narrator) { n.voice = voice }
}

// WithSpeed sets the playback speed hint. Zero leaves the backend default.
func WithSpeed(speed float64) Option {
	return func(n *Narrator) { n.speed = speed }
}

// WithTimeout bounds each synthesis call. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(n *Narrator) { n.timeout = d }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Narrator) { n.metrics = m }
}

// Narrator synthesises narration scripts and stores the artifacts. It
// implements [translate.Narrator].
type Narrator struct {
	provider tts.Provider
	store    ArtifactStore

	voice   string
	speed   float64
	timeout time.Duration
	metrics *observe.Metrics
}

var _ translate.Narrator = (*Narrator)(nil)

// New constructs a Narrator over the given speech backend and artifact store.
func New(provider tts.Provider, store ArtifactStore, opts ...Option) *Narrator {
	n := &Narrator{
		provider: provider,
		store:    store,
		timeout:  DefaultTimeout,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Narrate implements [translate.Narrator]. It returns the stored artifact's
// reference, or ("", nil) when there is nothing to narrate or synthesis
// failed — the caller's text results always survive.
func (n *Narrator) Narrate(ctx context.Context, t *translate.Translation, prefs styles.Preferences) (string, error) {
	script := BuildScript(t, prefs)
	if script.Empty() {
		return "", nil
	}
	script.Voice = n.voice
	script.Speed = n.speed

	cctx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	start := time.Now()
	audio, err := n.provider.Synthesize(cctx, script)
	n.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		n.metrics.RecordProviderRequest(ctx, n.provider.Name(), "tts", "error")
		n.metrics.RecordProviderError(ctx, n.provider.Name(), "tts")
		observe.Logger(ctx).Warn("narrate: synthesis failed",
			"provider", n.provider.Name(), "error", err)
		return "", nil
	}
	n.metrics.RecordProviderRequest(ctx, n.provider.Name(), "tts", "ok")

	ref, err := n.store.Put(audio)
	if err != nil {
		observe.Logger(ctx).Warn("narrate: artifact store failed", "error", err)
		return "", nil
	}
	return ref, nil
}

// BuildScript renders the aggregate into the ordered segment list to speak:
// the primary sentence first, then each toggled style's phrase pairs in
// aggregate order. A toggled style with no entries falls back to its whole
// sentence, exactly like the UI; the primary style never repeats its sentence.
func BuildScript(t *translate.Translation, prefs styles.Preferences) tts.Script {
	var segs []tts.Segment

	sentence := t.PrimarySentence()
	if sentence != "" {
		segs = append(segs, tts.Segment{
			Text:     sentence,
			Language: string(t.PrimaryStyle.Language),
		})
	}

	for _, st := range t.Styles(prefs) {
		if !prefs.WordByWord[st.Language] {
			continue
		}
		entries := t.EntriesFor(st)
		if len(entries) == 0 {
			if st == t.PrimaryStyle {
				continue
			}
			if s, ok := t.Sentence(st); ok && s != "" {
				segs = append(segs, tts.Segment{
					Text:       s,
					Language:   string(st.Language),
					PauseAfter: entryPause,
				})
			}
			continue
		}

		target := styles.PairTarget(st, prefs, t.SourceLang)
		for _, e := range entries {
			segs = append(segs,
				tts.Segment{
					Text:       e.SourcePhrase,
					Language:   string(t.SourceLang),
					PauseAfter: pairPause,
				},
				tts.Segment{
					Text:       e.TargetPhrase,
					Language:   string(target),
					PauseAfter: entryPause,
				},
			)
		}
	}

	// The sentence only needs a closing beat when a breakdown follows it.
	if sentence != "" && len(segs) > 1 {
		segs[0].PauseAfter = sentencePause
	}

	return tts.Script{
		Segments: segs,
		Language: string(t.PrimaryStyle.Language),
	}
}
