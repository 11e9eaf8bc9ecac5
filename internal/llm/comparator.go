package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/types"
)

const comparatorSystemPrompt = `You are a consistency analyst reviewing answers collected across stages of an initiative interview.
Given two answers and the relationship they are supposed to exhibit, decide whether they contradict each other.
A contradiction means the two answers cannot both hold under the stated relationship.
Severity: "high" when the conflict undermines the initiative, "medium" when it needs revision, "low" for minor tension.
Respond with only a JSON object:
{"contradictory": <bool>, "severity": "low|medium|high", "description": "<explanation>", "confidence": <0.0-1.0>}`

// StageComparator implements consistency.Comparator over a completion
// provider.
type StageComparator struct {
	provider Provider
	timeout  time.Duration
}

// NewStageComparator creates a comparator with a per-call timeout.
func NewStageComparator(provider Provider, timeout time.Duration) *StageComparator {
	return &StageComparator{
		provider: provider,
		timeout:  timeout,
	}
}

// Compare analyzes one designated cross-stage field pair.
func (c *StageComparator) Compare(ctx context.Context, pair consistency.FieldPair, textA, textB string) (*consistency.Comparison, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Expected relationship: %s\n\nStage %d answer (%s): %s\n\nStage %d answer (%s): %s",
		pair.Intent,
		pair.StageA, pair.FieldA, textA,
		pair.StageB, pair.FieldB, textB,
	)

	resp, err := c.provider.Complete(ctx, CompletionRequest{
		System:      comparatorSystemPrompt,
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
			"comparator response contained no JSON", err)
	}

	var cmp consistency.Comparison
	if err := json.Unmarshal([]byte(jsonStr), &cmp); err != nil {
		return nil, types.WrapRetryableError(types.LLM_RESPONSE_MALFORMED,
			"comparator response JSON did not match the expected shape", err)
	}

	return &cmp, nil
}

var _ consistency.Comparator = (*StageComparator)(nil)
