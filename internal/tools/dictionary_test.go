package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/retry"
)

const aiEntry = `[{
  "word": "intelligence",
  "phonetic": "/ɪnˈtɛlɪdʒəns/",
  "meanings": [
    {
      "partOfSpeech": "noun",
      "definitions": [
        {"definition": "The ability to acquire and apply knowledge and skills.", "example": "an eminent man of great intelligence"},
        {"definition": "The collection of information of military or political value."}
      ],
      "synonyms": ["intellect", "mind", "brain", "wit", "reason", "sense"]
    },
    {
      "partOfSpeech": "adjective",
      "definitions": [{"definition": "Relating to intelligence."}]
    }
  ]
}]`

type fakeCompleter struct {
	reply string
	err   error
	calls atomic.Int32
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.reply, f.err
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 2}
}

func newDict(t *testing.T, handler http.HandlerFunc, fallback Completer) *Dictionary {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	d, err := NewDictionary(DictionaryConfig{BaseURL: srv.URL + "/entries/en", Retry: testPolicy(), Fallback: fallback})
	require.NoError(t, err)
	return d
}

func TestDictionary_LookupFormatsEntry(t *testing.T) {
	t.Parallel()
	var path string
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(aiEntry))
	}, nil)

	def, err := d.Define(context.Background(), "The Intelligence?")
	require.NoError(t, err)
	assert.Equal(t, "/entries/en/intelligence", path)
	assert.Equal(t, SourceLookup, def.Source)
	assert.Equal(t, "intelligence", def.Term)

	want := strings.Join([]string{
		"Definition of 'intelligence':",
		"",
		"Pronunciation: /ɪnˈtɛlɪdʒəns/",
		"",
		"1. Noun",
		"   a) The ability to acquire and apply knowledge and skills.",
		`      Example: "an eminent man of great intelligence"`,
		"   b) The collection of information of military or political value.",
		"   Synonyms: intellect, mind, brain, wit, reason",
		"",
		"2. Adjective",
		"   a) Relating to intelligence.",
	}, "\n")
	assert.Equal(t, want, def.Text)
}

func TestDictionary_NotFoundFallsBackToGenerative(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	llm := &fakeCompleter{reply: "noun. The simulation of human intelligence by machines."}
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"title":"No Definitions Found"}`, http.StatusNotFound)
	}, llm)

	def, err := d.Define(context.Background(), "artificial intelligence")
	require.NoError(t, err)
	assert.Equal(t, SourceGenerative, def.Source)
	assert.True(t, strings.HasPrefix(def.Text, "Definition of 'artificial intelligence':\n\n"))
	assert.Contains(t, def.Text, "simulation of human intelligence")
	assert.Equal(t, int32(1), hits.Load(), "not-found must not be retried")
	assert.Equal(t, int32(1), llm.calls.Load())
}

func TestDictionary_TransientFailureIsRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(aiEntry))
	}, nil)

	def, err := d.Define(context.Background(), "intelligence")
	require.NoError(t, err)
	assert.Equal(t, SourceLookup, def.Source)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDictionary_NoFallbackSurfacesLookupError(t *testing.T) {
	t.Parallel()
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, nil)

	_, err := d.Define(context.Background(), "zzzxq")
	require.Error(t, err)
	assert.Equal(t, apperr.KindDefinitionNotFound, apperr.KindOf(err))
}

func TestDictionary_FallbackFailure(t *testing.T) {
	t.Parallel()
	llm := &fakeCompleter{err: apperr.Wrap(errors.New("down"), apperr.KindGenerationUnavailable, "chat model failed")}
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, llm)

	_, err := d.Define(context.Background(), "zzzxq")
	require.Error(t, err)
	assert.Equal(t, apperr.KindGenerationUnavailable, apperr.KindOf(err))
}

func TestDictionary_EmptyTerm(t *testing.T) {
	t.Parallel()
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("lookup must not be called for an empty term")
	}, nil)

	_, err := d.Define(context.Background(), " ?! ")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExtractTerm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		query string
		want  string
	}{
		{"Define artificial intelligence", "artificial intelligence"},
		{"define the term 'entropy'", "entropy"},
		{"What is the meaning of serendipity?", "serendipity"},
		{"Give me the definition of photosynthesis", "photosynthesis"},
		{"What does ephemeral mean?", "ephemeral"},
		{"what is recursion?", "recursion"},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExtractTerm(tc.query))
		})
	}
}

func TestCleanTerm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"An Apple", "apple"},
		{`"Entropy"!`, "entropy"},
		{"apple in computing", "apple"},
		{"python as a language", "python"},
		{"machine learning", "machine learning"},
		{"the", "the"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CleanTerm(tc.in), tc.in)
	}
}
