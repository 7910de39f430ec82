// Package provider selects a backend provider and priced model for a chat
// call, under a pluggable selection policy.
package provider

import (
	"errors"
	"sync/atomic"
)

// Backend is the capability set a provider entry exposes. It is kept
// minimal here; the dispatcher package defines the richer Backend contract
// used to actually issue calls.
type Backend interface {
	Key() string
}

// ModelSpec describes one model a provider entry offers, with pricing.
type ModelSpec struct {
	Name         string
	Aliases      []string
	InputPer1K   float64
	OutputPer1K  float64
}

func (m ModelSpec) matches(name string) bool {
	if m.Name == name {
		return true
	}
	for _, a := range m.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Entry is a registered provider: a caller-chosen key, a backend instance,
// and its declared models.
type Entry struct {
	Key     string
	Backend Backend
	Models  []ModelSpec
}

// Policy selects among multiple matching candidates.
type Policy string

const (
	First      Policy = "first"
	RoundRobin Policy = "roundrobin"
	Cheapest   Policy = "cheapest"
)

// ErrNoProvider is returned when no registered entry has a model matching
// the requested name.
var ErrNoProvider = errors.New("provider: no matching candidate")

// Selection is a resolved (entry, model, prices) tuple.
type Selection struct {
	Entry       Entry
	Model       string
	InputPer1K  float64
	OutputPer1K float64
}

type candidate struct {
	entry Entry
	model ModelSpec
}

// Registry holds registered provider entries and resolves a model name or
// alias to a Selection under a Policy.
type Registry struct {
	policy  Policy
	entries []Entry
	rrCount atomic.Uint64
}

// New constructs a Registry using the given selection policy. An empty
// policy defaults to First.
func New(policy Policy) *Registry {
	if policy == "" {
		policy = First
	}
	return &Registry{policy: policy}
}

// Add registers a provider entry.
func (r *Registry) Add(e Entry) {
	r.entries = append(r.entries, e)
}

// Choose resolves modelOrAlias to a Selection. An empty modelOrAlias matches
// every declared model across every entry.
func (r *Registry) Choose(modelOrAlias string) (Selection, error) {
	var candidates []candidate
	for _, e := range r.entries {
		for _, m := range e.Models {
			if modelOrAlias == "" || m.matches(modelOrAlias) {
				candidates = append(candidates, candidate{entry: e, model: m})
			}
		}
	}
	if len(candidates) == 0 {
		return Selection{}, ErrNoProvider
	}

	var chosen candidate
	switch r.policy {
	case RoundRobin:
		idx := r.rrCount.Add(1) - 1
		chosen = candidates[idx%uint64(len(candidates))]
	case Cheapest:
		chosen = candidates[0]
		best := chosen.model.InputPer1K + chosen.model.OutputPer1K
		for _, c := range candidates[1:] {
			total := c.model.InputPer1K + c.model.OutputPer1K
			if total < best {
				chosen = c
				best = total
			}
		}
	default: // First
		chosen = candidates[0]
	}

	return Selection{
		Entry:       chosen.entry,
		Model:       chosen.model.Name,
		InputPer1K:  chosen.model.InputPer1K,
		OutputPer1K: chosen.model.OutputPer1K,
	}, nil
}
