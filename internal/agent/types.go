package agent

import (
	"context"
	"unicode/utf8"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
)

// ID names one of the two interview-assistant agents.
type ID string

const (
	// AgentDeeper suggests follow-ups that dig into the candidate's last answer.
	AgentDeeper ID = "Deeper"
	// AgentNextQuestion suggests the next logical question to ask.
	AgentNextQuestion ID = "NextQuestion"
)

// maxSuggestionLength caps surfaced suggestion text, counted in runes.
const maxSuggestionLength = 200

// truncateSuggestion shortens text to the cap with a trailing ellipsis,
// cutting on a rune boundary so multi-byte text stays valid UTF-8.
func truncateSuggestion(text string) string {
	if utf8.RuneCountInString(text) <= maxSuggestionLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxSuggestionLength-3]) + "..."
}

// Suggestion is one actionable message for the interviewer.
type Suggestion struct {
	Agent ID     `json:"agent"`
	Text  string `json:"text"`
}

// Input is the context window handed to the suggestion provider.
type Input struct {
	SessionID      string
	LastText       string
	History        []transcript.Block
	JobProfile     string
	QuestionsAsked []string
}

// SuggestionProvider returns zero or one suggestion for the given context.
type SuggestionProvider interface {
	Suggest(ctx context.Context, in Input) (*Suggestion, error)
}

// QuestionDetector reports which catalog questions the transcript contains.
type QuestionDetector interface {
	Detect(ctx context.Context, transcript string) ([]string, error)
}
