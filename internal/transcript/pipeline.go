package transcript

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/metrics"
)

// convertTimeout bounds one provider call.
const convertTimeout = 30 * time.Second

// scribeDefaults requests English transcription with audio-event tagging and
// no diarization: each stream is already separated by source.
var scribeDefaults = ConvertOptions{
	ModelID:        "scribe_v1",
	TagAudioEvents: true,
	LanguageCode:   "eng",
	Diarize:        false,
}

// Pipeline submits closed utterances to the transcription provider and
// normalizes the result into Blocks delivered to the store. Transcription
// loss is non-fatal: provider failures and empty results drop the utterance.
type Pipeline struct {
	provider Provider
	store    *Store
	log      zerolog.Logger
	opts     ConvertOptions
	now      func() time.Time
}

// NewPipeline constructs a pipeline with scribe defaults.
func NewPipeline(provider Provider, store *Store, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		provider: provider,
		store:    store,
		log:      log,
		opts:     scribeDefaults,
		now:      time.Now,
	}
}

// Process transcribes one utterance's audio for the given speaker. The audio
// buffer is consumed: it is not referenced after the provider call returns.
func (p *Pipeline) Process(ctx context.Context, speaker Role, audio []byte) {
	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	res, err := p.provider.Convert(ctx, audio, p.opts)
	if err != nil {
		p.log.Warn().Err(err).Str("speaker", string(speaker)).Msg("transcription failed, dropping utterance")
		metrics.TranscriptionsDropped.WithLabelValues("provider_error").Inc()
		return
	}

	cleaned := CleanText(res.Text)
	if cleaned == "" {
		// Normal filtering: the utterance contained only non-speech cues.
		metrics.TranscriptionsDropped.WithLabelValues("empty").Inc()
		return
	}

	block := Block{
		Speaker:     speaker,
		Text:        cleaned,
		Timestamp:   p.now(),
		AudioEvents: res.AudioEvents,
	}
	p.store.Append(block)
	metrics.TranscriptionsEmitted.WithLabelValues(string(speaker)).Inc()
	p.log.Debug().Str("speaker", string(speaker)).Int("chars", len(cleaned)).Msg("transcription block emitted")
}
