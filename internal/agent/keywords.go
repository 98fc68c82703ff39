package agent

import (
	"context"
	"strings"
)

// KeywordDetector is the local fallback question detector used when no model
// credential is configured or the model response cannot be parsed. It matches
// English and French phrasings of the catalog questions.
type KeywordDetector struct{}

func (KeywordDetector) Detect(_ context.Context, transcript string) ([]string, error) {
	text := strings.ToLower(transcript)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	var ids []string

	// Fit & Motivation
	if contains("pourquoi", "why") && contains("consulting") {
		ids = append(ids, "fit-why-consulting")
	}
	if contains("pourquoi", "why") && contains("notre", "cabinet", "entreprise", "firm", "our company") {
		ids = append(ids, "fit-why-firm")
	}

	// Behavioral
	if contains("projet", "project") && contains("difficile", "complexe", "challenge", "challenging") {
		ids = append(ids, "behav-challenging-project")
	}
	if contains("équipe", "team", "leadership", "dirigé", "led") {
		ids = append(ids, "behav-led-team")
	}

	// Analytical
	if contains("analyser", "analyze") && contains("données", "data") {
		ids = append(ids, "analytical-analyze-data")
	}
	if contains("métriques", "metrics", "kpi", "indicateurs") {
		ids = append(ids, "analytical-metrics")
	}

	// Questions worth asking
	if contains("insight", "contre-intuitif", "counterintuitive", "appris", "learned") {
		ids = append(ids, "worth-counterintuitive-insight")
	}
	if contains("redesign", "repenser", "processus", "process", "scratch") {
		ids = append(ids, "worth-redesign-process")
	}

	return ids, nil
}
