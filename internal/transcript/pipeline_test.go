package transcript

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeProvider struct {
	result Result
	err    error
	calls  int
	opts   ConvertOptions
}

func (f *fakeProvider) Convert(ctx context.Context, audio []byte, opts ConvertOptions) (Result, error) {
	f.calls++
	f.opts = opts
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"(laughs)", ""},
		{"(laughs) actual words", "actual words"},
		{"hello (music) world", "hello world"},
		{"  plain text  ", "plain text"},
		{"((nested) still dropped) kept", "kept"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Fatalf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPipeline_EmitsCleanedBlock(t *testing.T) {
	prov := &fakeProvider{result: Result{Text: "(breath) I led the team", AudioEvents: []string{"breath"}}}
	store := NewStore()
	p := NewPipeline(prov, store, zerolog.Nop())

	p.Process(context.Background(), RoleInterviewee, []byte{1, 2, 3})

	hist := store.History()
	if len(hist) != 1 {
		t.Fatalf("expected 1 block, got %d", len(hist))
	}
	if hist[0].Text != "I led the team" {
		t.Fatalf("text = %q", hist[0].Text)
	}
	if hist[0].Speaker != RoleInterviewee {
		t.Fatalf("speaker = %q", hist[0].Speaker)
	}
	if len(hist[0].AudioEvents) != 1 {
		t.Fatalf("audio events lost")
	}
	if prov.opts.ModelID != "scribe_v1" || prov.opts.Diarize || !prov.opts.TagAudioEvents || prov.opts.LanguageCode != "eng" {
		t.Fatalf("unexpected convert options: %+v", prov.opts)
	}
}

func TestPipeline_DropsParentheticalOnlyText(t *testing.T) {
	prov := &fakeProvider{result: Result{Text: "(laughs)"}}
	store := NewStore()
	p := NewPipeline(prov, store, zerolog.Nop())

	p.Process(context.Background(), RoleInterviewer, []byte{1})

	if n := len(store.History()); n != 0 {
		t.Fatalf("expected no blocks for non-speech text, got %d", n)
	}
	if store.AccumulatedTranscript() != "" {
		t.Fatalf("accumulator must stay empty")
	}
}

func TestPipeline_DropsOnProviderError(t *testing.T) {
	prov := &fakeProvider{err: errors.New("upstream down")}
	store := NewStore()
	p := NewPipeline(prov, store, zerolog.Nop())

	p.Process(context.Background(), RoleInterviewer, []byte{1})

	if n := len(store.History()); n != 0 {
		t.Fatalf("expected drop on provider error, got %d blocks", n)
	}
}

func TestPipeline_AccumulatesInterviewerOnly(t *testing.T) {
	prov := &fakeProvider{result: Result{Text: "why consulting"}}
	store := NewStore()
	p := NewPipeline(prov, store, zerolog.Nop())

	p.Process(context.Background(), RoleInterviewer, []byte{1})
	prov.result = Result{Text: "because I like it"}
	p.Process(context.Background(), RoleInterviewee, []byte{1})

	if got := store.AccumulatedTranscript(); got != "why consulting" {
		t.Fatalf("accumulator = %q", got)
	}
	if n := len(store.History()); n != 2 {
		t.Fatalf("history = %d, want 2", n)
	}
}
