// Package transcript turns closed utterances into cleaned, labeled text
// blocks and maintains the session's transcript state.
package transcript

import (
	"context"
	"strings"
	"time"
)

// Role identifies a speaker in the meeting.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleInterviewee Role = "interviewee"
)

// Block is one cleaned transcription unit. Text is never empty.
type Block struct {
	Speaker     Role      `json:"speaker"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	AudioEvents []string  `json:"audio_events,omitempty"`
}

// ConvertOptions parameterizes a provider call.
type ConvertOptions struct {
	ModelID        string
	TagAudioEvents bool
	LanguageCode   string
	Diarize        bool
}

// Result is the provider's response schema. Text may be empty; AudioEvents is
// optional. Anything else the provider returns is ignored at the boundary.
type Result struct {
	Text        string
	AudioEvents []string
}

// Provider converts one utterance's audio into text.
type Provider interface {
	Convert(ctx context.Context, audio []byte, opts ConvertOptions) (Result, error)
}

// CleanText removes parenthetical annotations such as "(music)" and trims
// whitespace. Nested or unclosed parentheses are stripped conservatively:
// an unclosed "(" drops the rest of the string, matching a span removal of
// "(...)" groups.
func CleanText(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
