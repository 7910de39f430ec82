// Package contextbuilder assembles a bounded prompt from layered inputs —
// base instructions, a digest of older history, RAG snippets, and recent
// turns — trimming in a fixed order until the result fits a token budget.
package contextbuilder

import (
	"errors"
	"strings"

	"github.com/featherlabs/feather/llm"
	"github.com/featherlabs/feather/memory"
)

// Input is everything Build needs to assemble a bounded message list.
type Input struct {
	// History is the full historic turn sequence, oldest first.
	History []memory.Turn
	// Base is the caller's own leading messages (system prompt, task
	// framing); always included, truncated only as a last resort.
	Base []llm.Message
	// RAG is retrieved-context messages, least-relevant last.
	RAG []llm.Message
	// Digests, if non-empty, are used verbatim instead of synthesizing one
	// from History's older prefix.
	Digests []llm.Message

	MaxTokens      int
	MaxRecentTurns int
}

// ErrOverBudget is returned when no further trimming can bring the result
// within MaxTokens.
var ErrOverBudget = errors.New("contextbuilder: cannot fit within budget")

// estimateTokens mirrors the coarse 4-chars-per-token heuristic used
// elsewhere in the orchestrator, absent a real tokenizer.
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func messageTokens(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokens(m.Content)
	}
	return total
}

func turnTokens(turns []memory.Turn) int {
	total := 0
	for _, t := range turns {
		total += estimateTokens(t.Content)
	}
	return total
}

// Build linearizes input's layers in order base -> digest -> rag -> recent,
// synthesizing a digest from History's older prefix when Digests is empty,
// then trims in spec order until the result is within MaxTokens: drop RAG
// from the tail, truncate the digest, drop oldest recents, and finally
// truncate the last base message. It returns ErrOverBudget if the result
// still doesn't fit.
func Build(input Input) ([]memory.Turn, error) {
	recent := recentTurns(input.History, input.MaxRecentTurns)
	olderPrefix := input.History[:len(input.History)-len(recent)]

	digest := input.Digests
	if len(digest) == 0 && len(olderPrefix) > 0 {
		digest = []llm.Message{{Role: llm.RoleSummary, Content: synthesizeDigest(olderPrefix)}}
	}

	rag := append([]llm.Message(nil), input.RAG...)
	base := append([]llm.Message(nil), input.Base...)

	for {
		total := messageTokens(base) + messageTokens(digest) + messageTokens(rag) + turnTokens(recent)
		if input.MaxTokens <= 0 || total <= input.MaxTokens {
			return assemble(base, digest, rag, recent), nil
		}

		switch {
		case len(rag) > 0:
			rag = rag[:len(rag)-1]
		case len(digest) > 0 && messageTokens(digest) > 0:
			budget := input.MaxTokens - messageTokens(base) - messageTokens(rag) - turnTokens(recent)
			digest = truncateMessages(digest, budget)
		case len(recent) > 0:
			recent = recent[1:]
		case len(base) > 0:
			budget := input.MaxTokens - messageTokens(digest) - messageTokens(rag) - turnTokens(recent)
			truncated := truncateMessages(base[len(base)-1:], budget)
			base = append(base[:len(base)-1], truncated...)
			if messageTokens(base)+messageTokens(digest)+messageTokens(rag)+turnTokens(recent) > input.MaxTokens {
				return nil, ErrOverBudget
			}
			return assemble(base, digest, rag, recent), nil
		default:
			return nil, ErrOverBudget
		}
	}
}

func recentTurns(history []memory.Turn, maxRecentTurns int) []memory.Turn {
	if maxRecentTurns <= 0 || maxRecentTurns >= len(history) {
		return append([]memory.Turn(nil), history...)
	}
	return append([]memory.Turn(nil), history[len(history)-maxRecentTurns:]...)
}

func synthesizeDigest(turns []memory.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(string(t.Role))
		b.WriteString("] ")
		b.WriteString(t.Content)
	}
	return b.String()
}

func truncateMessages(msgs []llm.Message, budgetTokens int) []llm.Message {
	if budgetTokens <= 0 {
		return nil
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	for i := len(out) - 1; i >= 0 && budgetTokens > 0; i-- {
		maxChars := budgetTokens * 4
		if len(out[i].Content) > maxChars {
			truncated := out[i].Content[:maxChars]
			if idx := strings.LastIndexByte(truncated, ' '); idx > 0 {
				truncated = truncated[:idx]
			}
			out[i].Content = strings.TrimRight(truncated, " ") + "…"
		}
		budgetTokens -= estimateTokens(out[i].Content)
	}
	return out
}

func assemble(base, digest, rag []llm.Message, recent []memory.Turn) []memory.Turn {
	out := make([]memory.Turn, 0, len(base)+len(digest)+len(rag)+len(recent))
	for _, m := range base {
		out = append(out, messageToTurn(m))
	}
	for _, m := range digest {
		out = append(out, messageToTurn(m))
	}
	for _, m := range rag {
		out = append(out, messageToTurn(m))
	}
	out = append(out, recent...)
	return out
}

func messageToTurn(m llm.Message) memory.Turn {
	return memory.Turn{Role: m.Role, Content: m.Content}
}
