package agent

// QuestionCatalog maps predefined interview question identifiers to their
// text. The checklist tracks which of these have been asked.
var QuestionCatalog = map[string]string{
	// Fit & Motivation
	"fit-why-consulting": "Why consulting?",
	"fit-why-firm":       "Why our firm specifically?",

	// Behavioral Questions
	"behav-challenging-project": "Tell me about a challenging project",
	"behav-led-team":            "Describe a time you led a team",

	// Analytical & Technical Skills
	"analytical-analyze-data": "How would you analyze this data?",
	"analytical-metrics":      "What metrics would you use?",

	// Questions worth asking
	"worth-counterintuitive-insight": "What's the most counterintuitive insight you've learned in consulting?",
	"worth-redesign-process":         "If you could redesign our client engagement process from scratch, what would you change?",
}
