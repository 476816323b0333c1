package core

import (
	"sort"
	"strings"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// ScoredTool is one candidate with its confidence.
type ScoredTool struct {
	Tool       *tools.Tool
	Confidence float64
}

// SelectionResult is the selector's decision. When Ambiguous is true, Tool
// is nil and Alternatives lists the closest candidates; the selector never
// guesses below the floor.
type SelectionResult struct {
	Tool         *tools.Tool
	Confidence   float64
	Alternatives []ScoredTool
	Ambiguous    bool
}

// Scoring weights. A matched multi-word phrase is worth more than a single
// keyword; an exact command prefix short-circuits scoring entirely.
const (
	prefixConfidence = 0.95
	phraseWeight     = 0.35
	keywordWeight    = 0.20
	lenientBonus     = 0.10
	maxConfidence    = 0.95
)

// Selector matches free text against registered tools' trigger phrases.
// Pure and synchronous; the same text against the same registry always
// yields the same result.
type Selector struct {
	registry      *tools.Registry
	minConfidence float64
}

// NewSelector builds a selector with the configured ambiguity floor.
func NewSelector(registry *tools.Registry, minConfidence float64) *Selector {
	return &Selector{registry: registry, minConfidence: minConfidence}
}

// Select scores every registered tool against the text and returns the best
// match, or an ambiguous result when nothing clears the floor.
func (s *Selector) Select(text string) SelectionResult {
	trimmed := strings.TrimSpace(text)

	// Exact command prefix is the fast path.
	if strings.HasPrefix(trimmed, "/") {
		prefix := trimmed
		if i := strings.IndexAny(trimmed, " \t"); i > 0 {
			prefix = trimmed[:i]
		}
		if tool := s.registry.ByPrefix(prefix); tool != nil {
			logging.SelectorDebug("Prefix match: %s -> %s", prefix, tool.Name)
			return SelectionResult{Tool: tool, Confidence: prefixConfidence}
		}
	}

	scored := s.scoreAll(trimmed)
	if len(scored) == 0 || scored[0].Confidence < s.minConfidence {
		logging.Selector("Ambiguous request (best=%.2f, floor=%.2f)", bestConfidence(scored), s.minConfidence)
		return SelectionResult{Ambiguous: true, Alternatives: topN(scored, 3)}
	}

	best := scored[0]
	logging.Selector("Selected %s (%.2f)", best.Tool.Name, best.Confidence)
	return SelectionResult{
		Tool:         best.Tool,
		Confidence:   best.Confidence,
		Alternatives: topN(scored[1:], 3),
	}
}

// scoreAll returns all tools with nonzero confidence, best first. Ties
// break by priority, then name for determinism.
func (s *Selector) scoreAll(text string) []ScoredTool {
	lower := strings.ToLower(text)
	tokens := tokenize(lower)
	long := len(tokens) > 10

	var scored []ScoredTool
	for _, tool := range s.registry.All() {
		score := scoreTool(tool, lower, tokens)
		if score <= 0 {
			continue
		}
		if long {
			// Long free-form input dilutes keyword overlap; give any
			// plausible candidate a little slack.
			score += lenientBonus
		}
		if score > maxConfidence {
			score = maxConfidence
		}
		scored = append(scored, ScoredTool{Tool: tool, Confidence: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		if scored[i].Tool.Priority != scored[j].Tool.Priority {
			return scored[i].Tool.Priority > scored[j].Tool.Priority
		}
		return scored[i].Tool.Name < scored[j].Tool.Name
	})
	return scored
}

func scoreTool(tool *tools.Tool, lower string, tokens map[string]bool) float64 {
	score := 0.0
	for _, phrase := range tool.TriggerPhrases {
		phrase = strings.ToLower(phrase)
		if strings.Contains(phrase, " ") {
			if strings.Contains(lower, phrase) {
				score += phraseWeight
			}
		} else if tokens[phrase] {
			score += keywordWeight
		}
	}
	return score
}

func tokenize(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_' && r != '.'
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}

func topN(scored []ScoredTool, n int) []ScoredTool {
	if len(scored) > n {
		return scored[:n]
	}
	return scored
}

func bestConfidence(scored []ScoredTool) float64 {
	if len(scored) == 0 {
		return 0
	}
	return scored[0].Confidence
}
