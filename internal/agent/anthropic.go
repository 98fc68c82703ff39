package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MPBloo/LoopHR-iterate-Paris/internal/transcript"
)

const defaultMessagesURL = "https://api.anthropic.com/v1/messages"

// AnthropicClient calls the Anthropic messages API. It backs both the
// question detector and the suggestion provider.
type AnthropicClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	Endpoint   string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type detectorResult struct {
	DetectedQuestions []string `json:"detected_questions"`
}

type suggestionResult struct {
	Messages []Suggestion `json:"messages"`
}

// NewAnthropicClient constructs a client for the hosted API.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		Endpoint:   defaultMessagesURL,
	}
}

// complete runs one prompt through the messages API and returns the text of
// the first content block.
func (c *AnthropicClient) complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("anthropic api key missing")
	}

	reqBody, _ := json.Marshal(messagesRequest{
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", err
	}
	if len(mr.Content) == 0 || mr.Content[0].Type != "text" {
		return "", fmt.Errorf("anthropic: no text content")
	}
	return strings.TrimSpace(mr.Content[0].Text), nil
}

// Detect asks the model which catalog questions the transcript contains.
func (c *AnthropicClient) Detect(ctx context.Context, transcriptText string) ([]string, error) {
	text, err := c.complete(ctx, detectorPrompt(transcriptText), 512, 0)
	if err != nil {
		return nil, err
	}

	var res detectorResult
	if json.Unmarshal([]byte(text), &res) == nil {
		return res.DetectedQuestions, nil
	}
	// Model wrapped the JSON in fences or prose; extract the first balanced
	// object or array before giving up.
	raw, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("detector response is not json: %q", text)
	}
	if strings.HasPrefix(raw, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("detector array parse: %w", err)
		}
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("detector object parse: %w", err)
	}
	return res.DetectedQuestions, nil
}

// Suggest asks the agent orchestrator prompt for at most one suggestion.
func (c *AnthropicClient) Suggest(ctx context.Context, in Input) (*Suggestion, error) {
	text, err := c.complete(ctx, suggestionPrompt(in), 256, 0.3)
	if err != nil {
		return nil, err
	}

	var res suggestionResult
	if json.Unmarshal([]byte(text), &res) != nil {
		raw, ok := extractJSON(text)
		if !ok {
			return nil, fmt.Errorf("suggestion response is not json: %q", text)
		}
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("suggestion parse: %w", err)
		}
	}

	for _, msg := range res.Messages {
		if msg.Agent != AgentDeeper && msg.Agent != AgentNextQuestion {
			continue
		}
		if msg.Text == "" {
			continue
		}
		msg.Text = truncateSuggestion(msg.Text)
		// At most one suggestion per call.
		s := msg
		return &s, nil
	}
	return nil, nil
}

func detectorPrompt(transcriptText string) string {
	ids := make([]string, 0, len(QuestionCatalog))
	for id := range QuestionCatalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var list strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&list, "- %s: %s\n", id, QuestionCatalog[id])
	}

	return fmt.Sprintf(`You are a JSON API service. You respond STRICTLY with valid JSON, no text around it.

Your task: analyze an interview transcript and identify which questions from a predefined list were asked.

Available questions:
%s
Interview transcript:
"%s"

Analyze the transcript and identify which questions were asked. Consider:
- Direct questions matching the text
- Paraphrased versions of these questions
- Questions in French or English
- Similar intent even if worded differently

Expected JSON format:
{
  "detected_questions": ["question-id-1", "question-id-2"]
}

If no questions were detected, return:
{
  "detected_questions": []
}

IMPORTANT:
- Return ONLY valid JSON
- No markdown, no code blocks
- No text before or after the JSON
- Just pure JSON`, list.String(), transcriptText)
}

func suggestionPrompt(in Input) string {
	var history strings.Builder
	for _, b := range in.History {
		speaker := "candidate"
		if b.Speaker == transcript.RoleInterviewer {
			speaker = "interviewer"
		}
		fmt.Fprintf(&history, "[%s]: %s\n", speaker, b.Text)
	}
	asked := "None"
	if len(in.QuestionsAsked) > 0 {
		asked = strings.Join(in.QuestionsAsked, ", ")
	}

	return fmt.Sprintf(`You are an agent orchestrator assisting a recruiter during a live job interview.

There are 2 agents, with very specific roles:

1) Deeper
- Suggests follow-up questions to dig deeper into the candidate's LAST answer.
- Goal: obtain concrete examples, numbers, detailed context.
- Don't rephrase what has already been said, directly propose 1 or 2 short questions.

2) NextQuestion
- Suggests the NEXT logical question to ask now.
- Based on:
  - the conversation history ("history"),
  - the job position and key skills ("job_profile"),
  - what has NOT yet been sufficiently covered,
  - "questions_already_asked" to suggest a comparable question to those asked to other candidates if useful.

General rules:
- You speak ONLY to the recruiter, never to the candidate.
- Your messages must be in English, SHORT (< 200 characters) and actionable.
- You can have 0 or 1 agent speak per call, NEVER more than 1 message.
- Agent names must be EXACTLY: "Deeper" or "NextQuestion".
- If you have nothing truly useful to say, simply return no message.

MANDATORY output format (strict JSON):
{
  "messages": [
    { "agent": "Deeper", "text": "Ask for a specific example with numbers about this project." }
  ]
}

If no agent should speak, return exactly:
{
  "messages": []
}

INTERVIEW CONTEXT:

Session ID: %s
Last speaker: candidate
Candidate's last answer: "%s"

Recent history:
%s
Job profile: %s

Questions already asked to other candidates: %s

Analyze this context and generate the final JSON with AT MOST ONE agent (Deeper or NextQuestion) or none.`,
		in.SessionID, in.LastText, history.String(), in.JobProfile, asked)
}
