package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Signaling metrics
	SignalMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_signal_messages_published_total",
			Help: "Total signaling messages published to the relay",
		},
		[]string{"type"},
	)

	SignalPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meeting_signal_publish_failures_total",
			Help: "Total failed relay publishes",
		},
	)

	// Voice activity metrics
	UtterancesClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meeting_utterances_closed_total",
			Help: "Total utterances closed and submitted for transcription",
		},
	)

	UtterancesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meeting_utterances_discarded_total",
			Help: "Total utterances discarded below the minimum recording duration",
		},
	)

	// Transcription metrics
	TranscriptionsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_transcriptions_emitted_total",
			Help: "Total transcription blocks emitted",
		},
		[]string{"speaker"},
	)

	TranscriptionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_transcriptions_dropped_total",
			Help: "Total transcriptions dropped",
		},
		[]string{"reason"}, // "empty" or "provider_error"
	)

	// Suggestion metrics
	SuggestionsSurfaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_suggestions_surfaced_total",
			Help: "Total agent suggestions surfaced to the interviewer",
		},
		[]string{"agent"},
	)

	SuggestionsCooledDown = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meeting_suggestions_cooled_down_total",
			Help: "Total agent suggestions suppressed by the per-agent cooldown",
		},
		[]string{"agent"},
	)
)
