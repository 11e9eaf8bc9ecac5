package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iffystrayer/greenlight/internal/quality"
	"github.com/iffystrayer/greenlight/internal/types"
)

const evaluatorSystemPrompt = `You are a response-quality evaluator for a structured initiative interview.
Score how well the response answers the question, on an integer scale of 0 to 10:
0-3 means off-topic or empty, 4-6 means relevant but vague or incomplete,
7-10 means specific, complete, and actionable.
Respond with only a JSON object:
{"score": <0-10>, "issues": ["<problem>", ...], "follow_up_questions": ["<question>", ...]}
Leave the lists empty when the response scores 7 or above.`

// QualityEvaluator implements quality.Evaluator over a completion provider.
// The provider is the black-box scoring oracle; this client owns only the
// prompt and response parsing.
type QualityEvaluator struct {
	provider Provider
	timeout  time.Duration
}

// NewQualityEvaluator creates an evaluator with a per-call timeout.
func NewQualityEvaluator(provider Provider, timeout time.Duration) *QualityEvaluator {
	return &QualityEvaluator{
		provider: provider,
		timeout:  timeout,
	}
}

// Evaluate scores one response against the quality rubric.
func (e *QualityEvaluator) Evaluate(ctx context.Context, question, response, stageContext string) (*quality.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Stage intent: %s\n\nQuestion: %s\n\nResponse: %s",
		stageContext, question, response)

	resp, err := e.provider.Complete(ctx, CompletionRequest{
		System:      evaluatorSystemPrompt,
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}

	jsonStr, err := ExtractJSON(resp.Content)
	if err != nil {
		return nil, types.WrapRetryableError(types.LLM_RESPONSE_MALFORMED,
			"evaluator response contained no JSON", err)
	}

	var eval quality.Evaluation
	if err := json.Unmarshal([]byte(jsonStr), &eval); err != nil {
		return nil, types.WrapRetryableError(types.LLM_RESPONSE_MALFORMED,
			"evaluator response JSON did not match the expected shape", err)
	}

	return &eval, nil
}

var _ quality.Evaluator = (*QualityEvaluator)(nil)
