// Package memory defines the MemoryManager contract that the agent loop
// uses to persist and retrieve conversation turns, plus an in-process
// reference implementation.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/featherlabs/feather/llm"
)

// Turn is one stored conversation entry.
type Turn struct {
	Role      llm.Role
	Content   string
	CreatedAt time.Time
	Tokens    int
}

// ContextOptions bounds a GetContext call.
type ContextOptions struct {
	MaxTurns  int
	MaxTokens int
}

// TrimOptions bounds a Trim call. RetainTurns == 0 deletes the session.
type TrimOptions struct {
	RetainTurns int
}

// Summarizer folds a prefix of older turns into a single summary turn's
// content. The default summarizer joins "[role@ts] content" per line.
type Summarizer func(turns []Turn) string

// Manager is the contract the agent loop, context builder, and CLI use to
// persist and retrieve conversation state for a session.
type Manager interface {
	// Append stores turn for sessionID, enforcing maxTurns by evicting the
	// oldest turn once exceeded. Tokens and CreatedAt are filled in if zero.
	Append(ctx context.Context, sessionID string, turn Turn, maxTurns int) error

	// GetContext returns a budgeted, most-recent-first prefix of stored
	// turns for sessionID.
	GetContext(ctx context.Context, sessionID string, opts ContextOptions) ([]Turn, error)

	// Summarize folds the prefix of turns older than summaryMaxRecent into a
	// single summary turn, using summarizer (or the default if nil).
	Summarize(ctx context.Context, sessionID string, summaryMaxRecent int, summarizer Summarizer) error

	// Trim keeps only the most recent opts.RetainTurns turns, or deletes the
	// session entirely when RetainTurns is 0.
	Trim(ctx context.Context, sessionID string, opts TrimOptions) error
}

// DefaultSummarizer joins turns as "[role@RFC3339] content" lines.
func DefaultSummarizer(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(string(t.Role))
		b.WriteByte('@')
		b.WriteString(t.CreatedAt.UTC().Format(time.RFC3339))
		b.WriteString("] ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// estimateTokens is the stub token counter used when a turn carries no
// explicit count: roughly one token per four characters, the same coarse
// estimate the context builder uses, until a real tokenizer is wired in by
// the embedder.
func estimateTokens(content string) int {
	if len(content) == 0 {
		return 0
	}
	n := len(content) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// truncateWords truncates s to at most budget "tokens" worth of content
// (using the same coarse 4-chars-per-token estimate), word-aligned, and
// appends an ellipsis if anything was dropped.
func truncateWords(s string, budgetTokens int) string {
	if budgetTokens <= 0 {
		return ""
	}
	maxChars := budgetTokens * 4
	if len(s) <= maxChars {
		return s
	}
	truncated := s[:maxChars]
	if idx := strings.LastIndexByte(truncated, ' '); idx > 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimRight(truncated, " ") + "…"
}
