package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"resilience-sim/internal/llm"
	"resilience-sim/internal/model"
)

// EvaluatorService classifies freeform replies to a hateful comment as
// constructive or not. The primary path asks the external collaborator for a
// structured verdict; any failure falls back to a deterministic local
// classifier so the simulation stays playable offline.
type EvaluatorService struct {
	client    *llm.Client
	threshold int
	log       *zap.Logger
}

// NewEvaluatorService creates a new evaluator service. threshold is the
// minimum score a parsed verdict needs to count as positive.
func NewEvaluatorService(client *llm.Client, threshold int, log *zap.Logger) *EvaluatorService {
	return &EvaluatorService{client: client, threshold: threshold, log: log}
}

// parsedVerdict mirrors the JSON shape the collaborator is asked to return.
// Score arrives as a float from some models and is truncated.
type parsedVerdict struct {
	IsPositive bool    `json:"isPositive"`
	Feedback   string  `json:"feedback"`
	Score      float64 `json:"score"`
}

// Evaluate returns a verdict for the user's reply. Never errors: every
// failure mode resolves through the local fallback classifier.
func (s *EvaluatorService) Evaluate(ctx context.Context, hatefulComment, response string) model.Evaluation {
	if !s.client.Enabled() {
		return s.fallbackEvaluate(response)
	}

	reply, err := s.client.Complete(ctx, []model.ConversationMessage{
		{Role: model.RoleSystem, Content: evaluationSystemPrompt},
		{Role: model.RoleUser, Content: s.buildEvaluationPrompt(hatefulComment, response)},
	})
	if err != nil {
		s.log.Warn("evaluator call failed, using fallback", zap.Error(err))
		return s.fallbackEvaluate(response)
	}

	var parsed parsedVerdict
	if err := json.Unmarshal([]byte(cleanJSON(reply)), &parsed); err != nil {
		s.log.Warn("evaluator returned unparseable verdict, using fallback", zap.Error(err))
		return s.fallbackEvaluate(response)
	}

	score := int(parsed.Score)
	return model.Evaluation{
		IsPositive: parsed.IsPositive && score >= s.threshold,
		Feedback:   parsed.Feedback,
		Score:      score,
	}
}

const evaluationSystemPrompt = `You are evaluating how a content creator responds to a hateful comment on their social media post. Judge whether the response is constructive and protects the creator's mental health. Return ONLY valid JSON matching this schema:
{
  "isPositive": true or false,
  "feedback": "one or two sentences of coaching feedback",
  "score": 1 to 10
}

Constructive responses stay calm, set boundaries, thank supporters, or use platform tools (block, report, moderate). Hostile, sarcastic, or retaliatory responses are not constructive.`

func (s *EvaluatorService) buildEvaluationPrompt(hatefulComment, response string) string {
	return fmt.Sprintf("Hateful comment: %q\nCreator's response: %q\n\nEvaluate the creator's response.", hatefulComment, response)
}

// cleanJSON strips code fences and truncates to the last closing brace so a
// verdict wrapped or cut off by the model still parses.
func cleanJSON(raw string) string {
	out := strings.TrimSpace(raw)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)
	if idx := strings.LastIndex(out, "}"); idx >= 0 {
		out = out[:idx+1]
	}
	return out
}

// EvaluateLocal classifies a response with the local heuristics only, never
// touching the collaborator. Used when freeform evaluation is disabled.
func (s *EvaluatorService) EvaluateLocal(response string) model.Evaluation {
	return s.fallbackEvaluate(response)
}

var hostilePattern = regexp.MustCompile(`(?i)\b(stupid|idiot|moron|loser|shut up|f\*ck|damn|hate you|kill yourself)\b`)

// fallbackEvaluate is the deterministic local classifier: a pure function of
// the response text. Hostile keywords take precedence over the all-caps
// check.
func (s *EvaluatorService) fallbackEvaluate(response string) model.Evaluation {
	lower := strings.ToLower(response)

	if hostilePattern.MatchString(response) {
		return model.Evaluation{
			IsPositive: false,
			Feedback:   "Try to avoid harsh language. A calmer response might work better.",
			Score:      4,
		}
	}

	if len(response) > 10 && response == strings.ToUpper(response) && response != lower {
		return model.Evaluation{
			IsPositive: false,
			Feedback:   "Consider using normal capitalization. It comes across as less aggressive.",
			Score:      6,
		}
	}

	switch {
	case strings.Contains(lower, "thank") || strings.Contains(lower, "appreciate") ||
		strings.Contains(lower, "grateful") || strings.Contains(lower, "block") ||
		strings.Contains(lower, "report"):
		return model.Evaluation{
			IsPositive: true,
			Feedback:   "Great approach! You're handling this professionally.",
			Score:      9,
		}
	case strings.Contains(lower, "ignore") || strings.Contains(lower, "not worth"):
		return model.Evaluation{
			IsPositive: true,
			Feedback:   "Good strategy. Sometimes ignoring is the best response.",
			Score:      8,
		}
	}

	return model.Evaluation{
		IsPositive: true,
		Feedback:   "Nice response! You could also try thanking supporters or using moderation tools.",
		Score:      7,
	}
}
