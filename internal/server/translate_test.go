package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/lingocast/internal/align"
	"github.com/MrWong99/lingocast/internal/styles"
	"github.com/MrWong99/lingocast/internal/translate"
)

var (
	germanNative  = styles.Style{Language: styles.German, Register: styles.Native}
	englishFormal = styles.Style{Language: styles.English, Register: styles.Formal}
)

// translatorStub records the request it received and returns a canned result.
// With validate set it runs the real request validation first, so handler
// tests exercise the same error wrapping the service produces.
type translatorStub struct {
	got      translate.Request
	result   *translate.Translation
	err      error
	validate bool
}

func (s *translatorStub) Translate(_ context.Context, req translate.Request) (*translate.Translation, error) {
	s.got = req
	if s.validate {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testTranslation() *translate.Translation {
	return &translate.Translation{
		OriginalText: "Ananassaft für das Mädchen",
		SourceLang:   styles.German,
		PrimaryStyle: germanNative,
		Sentences: map[string]string{
			germanNative.ID():  "Ananassaft für das Mädchen.",
			englishFormal.ID(): "Pineapple juice for the girl.",
		},
		Entries: map[string][]align.Entry{
			germanNative.ID(): {
				{Style: germanNative, Order: 0, SourcePhrase: "Ananassaft", TargetPhrase: "pineapple juice", Confidence: 0.95, PhraseType: align.TypeCompound, MultiWord: true},
				{Style: germanNative, Order: 1, SourcePhrase: "für", TargetPhrase: "for", Confidence: 0.92, PhraseType: align.TypeWord},
				{Style: germanNative, Order: 2, SourcePhrase: "das Mädchen", TargetPhrase: "the girl", Confidence: 0.9, PhraseType: align.TypePhrase, MultiWord: true},
			},
			englishFormal.ID(): {
				{Style: englishFormal, Order: 0, SourcePhrase: "Ananassaft", TargetPhrase: "pineapple juice", Confidence: 0.93, PhraseType: align.TypeCompound, MultiWord: true},
			},
		},
		AudioRef: "b2f1.mp3",
	}
}

// postTranslate runs one POST /v1/translate through the full route table.
func postTranslate(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleTranslate_Success(t *testing.T) {
	t.Parallel()

	stub := &translatorStub{result: testTranslation()}
	srv := New(stub, nil)

	rec := postTranslate(t, srv, `{
		"text": "Ananassaft für das Mädchen",
		"source_lang": "de",
		"target_lang": "en",
		"style_preferences": {
			"german_native": true,
			"english_formal": true,
			"word_by_word_german": true,
			"mother_tongue": "en"
		}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	var resp translateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.OriginalText != "Ananassaft für das Mädchen" {
		t.Errorf("original_text = %q", resp.OriginalText)
	}
	if resp.TranslatedText != "Ananassaft für das Mädchen." {
		t.Errorf("translated_text = %q, want the primary sentence", resp.TranslatedText)
	}
	if len(resp.Translations) != 2 {
		t.Errorf("translations has %d styles, want 2", len(resp.Translations))
	}
	if resp.AudioReference != "b2f1.mp3" {
		t.Errorf("audio_reference = %q, want %q", resp.AudioReference, "b2f1.mp3")
	}

	if len(resp.WordByWord) != 4 {
		t.Fatalf("word_by_word has %d entries, want 4", len(resp.WordByWord))
	}
	first, ok := resp.WordByWord["german_native_0"]
	if !ok {
		t.Fatal(`word_by_word is missing key "german_native_0"`)
	}
	want := wordByWord{
		Source:        "Ananassaft",
		Target:        "pineapple juice",
		Language:      "en",
		Style:         "german_native",
		Order:         0,
		DisplayFormat: "Ananassaft (pineapple juice)",
	}
	if first != want {
		t.Errorf("german_native_0 = %+v, want %+v", first, want)
	}
	if _, ok := resp.WordByWord["english_formal_0"]; !ok {
		t.Error(`word_by_word is missing key "english_formal_0"`)
	}

	// The stub must have seen the decoded request.
	if stub.got.Text != "Ananassaft für das Mädchen" {
		t.Errorf("service saw text %q", stub.got.Text)
	}
	if stub.got.SourceLang != styles.German || stub.got.TargetLang != styles.English {
		t.Errorf("service saw languages %q -> %q", stub.got.SourceLang, stub.got.TargetLang)
	}
	wantStyles := []styles.Style{germanNative, englishFormal}
	if len(stub.got.Prefs.Styles) != len(wantStyles) {
		t.Fatalf("service saw %d styles, want %d", len(stub.got.Prefs.Styles), len(wantStyles))
	}
	for i, st := range wantStyles {
		if stub.got.Prefs.Styles[i] != st {
			t.Errorf("style %d = %v, want %v", i, stub.got.Prefs.Styles[i], st)
		}
	}
	if !stub.got.Prefs.WordByWord[styles.German] {
		t.Error("word-by-word toggle for german not forwarded")
	}
	if stub.got.Prefs.MotherTongue != styles.English {
		t.Errorf("mother tongue = %q, want %q", stub.got.Prefs.MotherTongue, styles.English)
	}
}

func TestHandleTranslate_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := New(&translatorStub{}, nil)
	rec := postTranslate(t, srv, `{"text": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTranslate_UnknownStyleFlag(t *testing.T) {
	t.Parallel()

	srv := New(&translatorStub{}, nil)
	rec := postTranslate(t, srv, `{
		"text": "hallo",
		"source_lang": "de",
		"style_preferences": {"german_slang": true}
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "german_slang") {
		t.Errorf("error body %q does not name the bad flag", rec.Body)
	}
}

func TestHandleTranslate_ValidationFailure(t *testing.T) {
	t.Parallel()

	srv := New(&translatorStub{validate: true}, nil)
	rec := postTranslate(t, srv, `{
		"text": "",
		"source_lang": "de",
		"style_preferences": {"german_native": true}
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "empty text") {
		t.Errorf("error body %q does not carry the validation detail", rec.Body)
	}
}

func TestHandleTranslate_NoStyleProduced(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: no sections for 1 requested style(s)", translate.ErrNoStyles)
	srv := New(&translatorStub{err: err}, nil)
	rec := postTranslate(t, srv, `{
		"text": "hallo",
		"source_lang": "de",
		"style_preferences": {"german_native": true}
	}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestHandleTranslate_InternalError(t *testing.T) {
	t.Parallel()

	srv := New(&translatorStub{err: errors.New("pipeline exploded")}, nil)
	rec := postTranslate(t, srv, `{
		"text": "hallo",
		"source_lang": "de",
		"style_preferences": {"german_native": true}
	}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Error("internal error detail leaked to the client")
	}
}

func TestHandleTranslate_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := New(&translatorStub{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/translate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

// TestDecodePreferences_OrderIndependent pins the determinism requirement:
// the enable order decides the primary style and the cache key, so two
// payloads differing only in JSON key order must decode identically.
func TestDecodePreferences_OrderIndependent(t *testing.T) {
	t.Parallel()

	decode := func(body string) styles.Preferences {
		t.Helper()
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		prefs, err := decodePreferences(raw)
		if err != nil {
			t.Fatalf("decodePreferences: %v", err)
		}
		return prefs
	}

	a := decode(`{"english_formal": true, "german_native": true, "german_formal": true}`)
	b := decode(`{"german_formal": true, "german_native": true, "english_formal": true}`)

	if a.Canonical() != b.Canonical() {
		t.Fatalf("key order changed the decoded preferences:\n a = %s\n b = %s", a.Canonical(), b.Canonical())
	}
	want := []styles.Style{
		germanNative,
		{Language: styles.German, Register: styles.Formal},
		englishFormal,
	}
	if len(a.Styles) != len(want) {
		t.Fatalf("decoded %d styles, want %d", len(a.Styles), len(want))
	}
	for i, st := range want {
		if a.Styles[i] != st {
			t.Errorf("style %d = %v, want %v", i, a.Styles[i], st)
		}
	}
}

func TestDecodePreferences_FalseFlagsAndNames(t *testing.T) {
	t.Parallel()

	raw := map[string]json.RawMessage{
		"german_native":        json.RawMessage(`true`),
		"english_formal":       json.RawMessage(`false`),
		"word_by_word_german":  json.RawMessage(`true`),
		"word_by_word_english": json.RawMessage(`false`),
		"mother_tongue":        json.RawMessage(`"spanish"`),
	}
	prefs, err := decodePreferences(raw)
	if err != nil {
		t.Fatalf("decodePreferences: %v", err)
	}
	if len(prefs.Styles) != 1 || prefs.Styles[0] != germanNative {
		t.Errorf("styles = %v, want only german_native", prefs.Styles)
	}
	if !prefs.WordByWord[styles.German] {
		t.Error("german word-by-word toggle lost")
	}
	if prefs.WordByWord[styles.English] {
		t.Error("false toggle recorded as on")
	}
	if prefs.MotherTongue != styles.Spanish {
		t.Errorf("mother tongue = %q, want %q (name form accepted)", prefs.MotherTongue, styles.Spanish)
	}
}

func TestDecodePreferences_RejectsMistypedValue(t *testing.T) {
	t.Parallel()

	raw := map[string]json.RawMessage{
		"german_native": json.RawMessage(`"yes"`),
	}
	if _, err := decodePreferences(raw); err == nil {
		t.Fatal("decodePreferences accepted a string where a boolean belongs")
	}
}

// TestToResponse_PairLanguageFollowsMotherTongue checks the language tag on
// wire entries: source-language styles pair against the mother tongue,
// cross-language styles against their own language.
func TestToResponse_PairLanguageFollowsMotherTongue(t *testing.T) {
	t.Parallel()

	prefs := styles.Preferences{
		Styles:       []styles.Style{germanNative, englishFormal},
		MotherTongue: styles.Spanish,
	}
	resp := toResponse(testTranslation(), prefs)

	if got := resp.WordByWord["german_native_0"].Language; got != "es" {
		t.Errorf("german_native_0 language = %q, want %q", got, "es")
	}
	if got := resp.WordByWord["english_formal_0"].Language; got != "en" {
		t.Errorf("english_formal_0 language = %q, want %q", got, "en")
	}
}
