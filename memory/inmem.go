package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InMemStore is the in-process reference Manager. Per-session access is
// serialized with one sync.Mutex per session key, stored in a sync.Map, so
// unrelated sessions never contend with each other.
type InMemStore struct {
	locks sync.Map // sessionID -> *sync.Mutex
	data  sync.Map // sessionID -> *[]Turn (guarded by the session's lock)
}

// NewInMemStore constructs an empty InMemStore.
func NewInMemStore() *InMemStore {
	return &InMemStore{}
}

func (s *InMemStore) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *InMemStore) turnsFor(sessionID string) []Turn {
	v, ok := s.data.Load(sessionID)
	if !ok {
		return nil
	}
	return *(v.(*[]Turn))
}

func (s *InMemStore) setTurns(sessionID string, turns []Turn) {
	s.data.Store(sessionID, &turns)
}

// Append implements Manager.
func (s *InMemStore) Append(_ context.Context, sessionID string, turn Turn, maxTurns int) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	if turn.Tokens == 0 {
		turn.Tokens = estimateTokens(turn.Content)
	}

	turns := append(s.turnsFor(sessionID), turn)
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	s.setTurns(sessionID, turns)
	return nil
}

// GetContext implements Manager.
func (s *InMemStore) GetContext(_ context.Context, sessionID string, opts ContextOptions) ([]Turn, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	turns := s.turnsFor(sessionID)
	if len(turns) == 0 {
		return nil, nil
	}

	var out []Turn
	sumTokens := 0
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if opts.MaxTurns > 0 && len(out) >= opts.MaxTurns {
			break
		}
		if opts.MaxTokens > 0 {
			if sumTokens+t.Tokens <= opts.MaxTokens {
				out = append(out, t)
				sumTokens += t.Tokens
				continue
			}
			remaining := opts.MaxTokens - sumTokens
			if remaining > 0 && t.Content != "" {
				truncated := t.Content
				truncated = truncateWords(truncated, remaining)
				if truncated != "" {
					tc := t
					tc.Content = truncated
					tc.Tokens = remaining
					out = append(out, tc)
				}
			}
			break
		}
		out = append(out, t)
		sumTokens += t.Tokens
	}
	return out, nil
}

// Summarize implements Manager.
func (s *InMemStore) Summarize(_ context.Context, sessionID string, summaryMaxRecent int, summarizer Summarizer) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	turns := s.turnsFor(sessionID)
	if len(turns) <= summaryMaxRecent {
		return nil
	}
	if summarizer == nil {
		summarizer = DefaultSummarizer
	}

	cut := len(turns) - summaryMaxRecent
	older := turns[:cut]
	recent := turns[cut:]

	summary := Turn{
		Role:      "summary",
		Content:   summarizer(older),
		CreatedAt: time.Now(),
	}
	summary.Tokens = estimateTokens(summary.Content)

	merged := make([]Turn, 0, len(recent)+1)
	merged = append(merged, summary)
	merged = append(merged, recent...)
	s.setTurns(sessionID, merged)
	return nil
}

// Trim implements Manager.
func (s *InMemStore) Trim(_ context.Context, sessionID string, opts TrimOptions) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if opts.RetainTurns < 0 {
		return errors.New("memory: retainTurns must be >= 0")
	}
	if opts.RetainTurns == 0 {
		s.data.Delete(sessionID)
		return nil
	}
	turns := s.turnsFor(sessionID)
	if len(turns) > opts.RetainTurns {
		s.setTurns(sessionID, turns[len(turns)-opts.RetainTurns:])
	}
	return nil
}
