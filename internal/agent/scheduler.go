// Package agent drives the periodic AI assistance tasks: interview-question
// checklist detection and per-agent suggestions.
package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/metrics"
	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
)

const (
	checklistInterval = 3 * time.Second
	agentInterval     = 5 * time.Second
	// agentCooldown is the minimum interval between two surfaced suggestions
	// from the same agent identity.
	agentCooldown = 60 * time.Second
	// suggestionDisplayFor is how long a surfaced suggestion stays visible.
	suggestionDisplayFor = 10 * time.Second
	// historyWindow bounds the context handed to the suggestion provider.
	historyWindow = 10
	callTimeout   = 15 * time.Second
)

// Scheduler runs the two periodic tasks against the transcript store and
// rate-limits their visible output. A nil provider disables suggestions
// (missing credential). The detector is never nil; a keyword fallback is
// substituted upstream.
type Scheduler struct {
	log        zerolog.Logger
	store      *transcript.Store
	detector   QuestionDetector
	fallback   KeywordDetector
	provider   SuggestionProvider
	sessionID  string
	jobProfile string

	mu        sync.Mutex
	checklist map[string]struct{}
	current   *Suggestion
	cooldowns map[ID]time.Time

	now func() time.Time

	onChecklist  func([]string)
	onSuggestion func(*Suggestion)
}

// NewScheduler constructs a scheduler bound to the given transcript store.
func NewScheduler(store *transcript.Store, detector QuestionDetector, provider SuggestionProvider, sessionID, jobProfile string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		log:        log,
		store:      store,
		detector:   detector,
		provider:   provider,
		sessionID:  sessionID,
		jobProfile: jobProfile,
		checklist:  make(map[string]struct{}),
		cooldowns:  make(map[ID]time.Time),
		now:        time.Now,
	}
}

// SetOnChecklist registers a callback fired with the replaced checked-set.
func (s *Scheduler) SetOnChecklist(fn func([]string)) { s.onChecklist = fn }

// SetOnSuggestion registers a callback fired when a suggestion is surfaced
// (non-nil) or auto-cleared (nil).
func (s *Scheduler) SetOnSuggestion(fn func(*Suggestion)) { s.onSuggestion = fn }

// Run starts both periodic tasks and blocks until the context is cancelled.
// The tasks tick independently: a slow call in one never delays the other.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(checklistInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checklistTick(ctx)
			}
		}
	}()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(agentInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.agentTick(ctx)
			}
		}
	}()
	wg.Wait()
}

// checklistTick submits the accumulated interviewer transcript to the
// detector and replaces the checked-set with the result. A detector failure
// (API error or unparseable output) degrades to the keyword heuristic over
// the same transcript rather than losing the tick.
func (s *Scheduler) checklistTick(ctx context.Context) {
	text := s.store.AccumulatedTranscript()
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	ids, err := s.detector.Detect(ctx, text)
	if err != nil {
		s.log.Warn().Err(err).Msg("question detection failed, falling back to keywords")
		ids, _ = s.fallback.Detect(ctx, text)
	}
	s.replaceChecklist(ids)
}

// replaceChecklist swaps the checked-set for exactly the given ids.
func (s *Scheduler) replaceChecklist(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.mu.Lock()
	s.checklist = next
	notify := s.onChecklist
	s.mu.Unlock()
	if notify != nil {
		notify(ids)
	}
}

// agentTick builds the context window, calls the suggestion provider, and
// gates the result by the per-agent cooldown.
func (s *Scheduler) agentTick(ctx context.Context) {
	if s.provider == nil {
		return
	}
	last, ok := s.store.LastBySpeaker(transcript.RoleInterviewee)
	if !ok {
		// Fall back to the most recent entry of any role.
		if last, ok = s.store.Last(); !ok {
			return
		}
	}

	in := Input{
		SessionID:      s.sessionID,
		LastText:       last.Text,
		History:        s.store.Recent(historyWindow),
		JobProfile:     s.jobProfile,
		QuestionsAsked: s.Checklist(),
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	sug, err := s.provider.Suggest(ctx, in)
	if err != nil {
		s.log.Warn().Err(err).Msg("suggestion call failed, skipping tick")
		return
	}
	if sug == nil {
		return
	}
	sug.Text = truncateSuggestion(sug.Text)
	s.surface(sug)
}

// surface shows the suggestion unless its agent is still cooling down.
func (s *Scheduler) surface(sug *Suggestion) {
	now := s.now()
	s.mu.Lock()
	if lastShown, ok := s.cooldowns[sug.Agent]; ok && now.Sub(lastShown) < agentCooldown {
		s.mu.Unlock()
		metrics.SuggestionsCooledDown.WithLabelValues(string(sug.Agent)).Inc()
		s.log.Debug().Str("agent", string(sug.Agent)).Msg("suggestion suppressed by cooldown")
		return
	}
	s.cooldowns[sug.Agent] = now
	s.current = sug
	notify := s.onSuggestion
	s.mu.Unlock()

	metrics.SuggestionsSurfaced.WithLabelValues(string(sug.Agent)).Inc()
	if notify != nil {
		notify(sug)
	}
	// Auto-clear after the display window, regardless of cooldown state.
	time.AfterFunc(suggestionDisplayFor, func() { s.clearIf(sug) })
}

func (s *Scheduler) clearIf(sug *Suggestion) {
	s.mu.Lock()
	if s.current != sug {
		s.mu.Unlock()
		return
	}
	s.current = nil
	notify := s.onSuggestion
	s.mu.Unlock()
	if notify != nil {
		notify(nil)
	}
}

// Checklist returns the currently checked question ids, sorted.
func (s *Scheduler) Checklist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.checklist))
	for id := range s.checklist {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Current returns the currently surfaced suggestion, if any.
func (s *Scheduler) Current() *Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
