package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/lingocast/internal/observe"
	"github.com/MrWong99/lingocast/internal/styles"
	"github.com/MrWong99/lingocast/internal/translate"
)

// translateRequest is the inbound wire form of one translation request.
// style_preferences holds dynamic keys: boolean style flags such as
// "german_native", per-language toggles such as "word_by_word_german", and
// the "mother_tongue" code.
type translateRequest struct {
	Text             string                     `json:"text"`
	SourceLang       string                     `json:"source_lang"`
	TargetLang       string                     `json:"target_lang"`
	StylePreferences map[string]json.RawMessage `json:"style_preferences"`
}

// translateResponse is the outbound wire form of a finished aggregate.
type translateResponse struct {
	OriginalText   string                `json:"original_text"`
	TranslatedText string                `json:"translated_text"`
	Translations   map[string]string     `json:"translations"`
	WordByWord     map[string]wordByWord `json:"word_by_word"`
	AudioReference string                `json:"audio_reference,omitempty"`
}

// wordByWord is one alignment entry on the wire, keyed "<style>_<order>".
// Language names the language of the target phrase.
type wordByWord struct {
	Source        string `json:"source"`
	Target        string `json:"target"`
	Language      string `json:"language"`
	Style         string `json:"style"`
	Order         int    `json:"order"`
	IsPhrasalVerb bool   `json:"is_phrasal_verb"`
	DisplayFormat string `json:"display_format"`
}

// displayFormat renders the fixed "source (target)" template clients show
// alignment entries with.
func displayFormat(source, target string) string {
	return fmt.Sprintf("%s (%s)", source, target)
}

const wordByWordPrefix = "word_by_word_"

// decodePreferences interprets the style_preferences object. Unknown keys and
// mistyped values are rejected so clients learn about typos instead of
// silently losing a style. Styles enable in a fixed language-then-register
// order: JSON object keys carry no order, and the enable order picks the
// primary style and keys the cache, so it must not depend on map iteration.
func decodePreferences(raw map[string]json.RawMessage) (styles.Preferences, error) {
	var prefs styles.Preferences
	flags := make(map[string]bool, len(raw))

	for key, val := range raw {
		switch {
		case key == "mother_tongue":
			var code string
			if err := json.Unmarshal(val, &code); err != nil {
				return prefs, errors.New("mother_tongue: expected a string")
			}
			if strings.TrimSpace(code) == "" {
				continue
			}
			lang, err := styles.ParseLanguage(code)
			if err != nil {
				return prefs, fmt.Errorf("mother_tongue: unknown language %q", code)
			}
			prefs.MotherTongue = lang

		case strings.HasPrefix(key, wordByWordPrefix):
			lang, err := styles.ParseLanguage(strings.TrimPrefix(key, wordByWordPrefix))
			if err != nil {
				return prefs, fmt.Errorf("unknown preference flag %q", key)
			}
			var on bool
			if err := json.Unmarshal(val, &on); err != nil {
				return prefs, fmt.Errorf("%s: expected a boolean", key)
			}
			if on {
				if prefs.WordByWord == nil {
					prefs.WordByWord = make(map[styles.Language]bool, 2)
				}
				prefs.WordByWord[lang] = true
			}

		default:
			if _, err := styles.ParseID(key); err != nil {
				return prefs, fmt.Errorf("unknown preference flag %q", key)
			}
			var on bool
			if err := json.Unmarshal(val, &on); err != nil {
				return prefs, fmt.Errorf("%s: expected a boolean", key)
			}
			flags[key] = on
		}
	}

	for _, lang := range styles.Languages() {
		for _, reg := range styles.Registers() {
			st := styles.Style{Language: lang, Register: reg}
			if flags[st.ID()] {
				prefs.Enable(st)
			}
		}
	}
	return prefs, nil
}

// parseLang converts a wire language leniently; unknown values pass through
// unchanged so [translate.Request.Validate] reports them.
func parseLang(s string) styles.Language {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if l, err := styles.ParseLanguage(s); err == nil {
		return l
	}
	return styles.Language(s)
}

// handleTranslate serves POST /v1/translate.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prefs, err := decodePreferences(req.StylePreferences)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.translator.Translate(r.Context(), translate.Request{
		Text:       req.Text,
		SourceLang: parseLang(req.SourceLang),
		TargetLang: parseLang(req.TargetLang),
		Prefs:      prefs,
	})
	if err != nil {
		s.translateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t, prefs))
}

func (s *Server) translateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, translate.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, translate.ErrNoStyles):
		writeError(w, http.StatusBadGateway, "no translation could be produced")
	default:
		observe.Logger(r.Context()).Error("server: translate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// toResponse maps the aggregate onto the wire. Entry keys derive from style
// and order, so identical requests serialize identically.
func toResponse(t *translate.Translation, prefs styles.Preferences) translateResponse {
	resp := translateResponse{
		OriginalText:   t.OriginalText,
		TranslatedText: t.PrimarySentence(),
		Translations:   t.Sentences,
		WordByWord:     make(map[string]wordByWord),
		AudioReference: t.AudioRef,
	}
	for _, entries := range t.Entries {
		for _, e := range entries {
			target := styles.PairTarget(e.Style, prefs, t.SourceLang)
			key := fmt.Sprintf("%s_%d", e.Style.ID(), e.Order)
			resp.WordByWord[key] = wordByWord{
				Source:        e.SourcePhrase,
				Target:        e.TargetPhrase,
				Language:      string(target),
				Style:         e.Style.ID(),
				Order:         e.Order,
				IsPhrasalVerb: e.IsPhrasalVerb(),
				DisplayFormat: displayFormat(e.SourcePhrase, e.TargetPhrase),
			}
		}
	}
	return resp
}
