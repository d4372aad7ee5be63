package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/llm"
	"github.com/hesiod-au/mentat/internal/rank"
)

const selectionSystemPrompt = `You choose which files a coding assistant should see to complete a task.
The user message lists candidate files as "index: path (detail level)".
Reply with a JSON array of the indices worth including, highest value first.
Choose only what the task needs. Reply with the JSON array and nothing else.`

// LLMAssisted asks a model to choose the candidate subset, then validates
// the choice against the budget with the same admission rules the greedy
// selector uses. Any completer failure falls back to pure greedy selection.
type LLMAssisted struct {
	completer llm.Completer
	greedy    *Greedy
	logger    *zap.Logger
}

func NewLLMAssisted(completer llm.Completer, greedy *Greedy, logger *zap.Logger) *LLMAssisted {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAssisted{completer: completer, greedy: greedy, logger: logger.Named("selector")}
}

func (s *LLMAssisted) Select(ctx context.Context, candidates []rank.Candidate, pool int, model string,
	fallback []feature.DetailLevel, query string, hints []string) ([]feature.Feature, error) {

	if len(candidates) == 0 {
		return nil, nil
	}

	indices, err := s.choose(ctx, candidates, query, hints)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("model-assisted selection failed, using greedy selection", zap.Error(err))
		return s.greedy.Select(ctx, candidates, pool, model, fallback, query, hints)
	}

	// Keep the model's subset but admit in rank order, so budget overflow
	// discards the least relevant choices first.
	chosenSet := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(candidates) {
			chosenSet[i] = true
		}
	}
	chosen := make([]rank.Candidate, 0, len(chosenSet))
	for i, c := range candidates {
		if chosenSet[i] {
			chosen = append(chosen, c)
		}
	}
	return s.admit(ctx, chosen, pool, model, fallback)
}

// admit is the budget validation pass. Unlike the greedy path scan, the
// model may legitimately pick several disjoint intervals of one file, so
// deduplication runs on (path, interval) keys; a file is still never mixed
// between interval and whole-file representations.
func (s *LLMAssisted) admit(ctx context.Context, chosen []rank.Candidate, pool int, model string,
	fallback []feature.DetailLevel) ([]feature.Feature, error) {

	remaining := pool
	var selected []feature.Feature
	seenKey := make(map[string]bool)
	pathWhole := make(map[string]bool)
	pathSplit := make(map[string]bool)

	for _, c := range chosen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if remaining <= 0 {
			break
		}
		if c.Feature.Pinned || seenKey[c.Feature.Key()] || pathWhole[c.Feature.Path] {
			continue
		}

		fitted, cost, ok, err := s.greedy.fit(ctx, c.Feature, remaining, model, fallback)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if fitted.Level == feature.LevelInterval {
			pathSplit[fitted.Path] = true
		} else {
			if pathSplit[fitted.Path] || pathWhole[fitted.Path] {
				continue
			}
			pathWhole[fitted.Path] = true
		}

		seenKey[c.Feature.Key()] = true
		seenKey[fitted.Key()] = true
		selected = append(selected, fitted)
		remaining -= cost
	}
	return selected, nil
}

func (s *LLMAssisted) choose(ctx context.Context, candidates []rank.Candidate, query string, hints []string) ([]int, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Task:\n%s\n\n", query)
	if len(hints) > 0 {
		prompt.WriteString("Expected edits:\n")
		for _, hint := range hints {
			fmt.Fprintf(&prompt, "- %s\n", hint)
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("Candidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&prompt, "%d: %s (%s)\n", i, c.Feature.Ref(), c.Feature.Level)
	}

	response, err := s.completer.Complete(ctx, selectionSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}
	return parseIndices(response)
}

func parseIndices(response string) ([]int, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var indices []int
	if err := json.Unmarshal([]byte(cleaned), &indices); err != nil {
		return nil, fmt.Errorf("model returned unparseable selection %q: %w", response, err)
	}
	return indices, nil
}
