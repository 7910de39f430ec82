// Package ndjsonsink writes events as newline-delimited JSON, one object per
// line, with a trailing summary line once a run completes.
package ndjsonsink

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/featherlabs/feather/events"
)

// Sink writes one JSON line per event to w, plus a run-summary line on
// run.complete/run.error.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	seq     atomic.Int64
	tracker *events.Tracker
}

// New constructs a Sink writing to w. tracker may be nil if run summaries
// are not desired.
func New(w io.Writer, tracker *events.Tracker) *Sink {
	return &Sink{w: w, enc: json.NewEncoder(w), tracker: tracker}
}

type line struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Type      events.Type    `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	Fields    map[string]any `json:"-"`
}

// MarshalJSON flattens Fields alongside the envelope fields.
func (l line) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"seq":       l.Seq,
		"timestamp": l.Timestamp,
		"type":      l.Type,
	}
	if l.SessionID != "" {
		out["sessionId"] = l.SessionID
	}
	if l.AgentID != "" {
		out["agentId"] = l.AgentID
	}
	for k, v := range l.Fields {
		out[k] = v
	}
	return json.Marshal(out)
}

type summaryLine struct {
	Status    string          `json:"status"`
	Type      events.Type     `json:"type"`
	Metrics   events.Snapshot `json:"metrics"`
}

// HandleEvent implements events.Subscriber.
func (s *Sink) HandleEvent(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := line{
		Seq:       s.seq.Add(1),
		Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Type:      e.Type,
		SessionID: e.SessionID,
		AgentID:   e.AgentID,
		Fields:    e.Fields,
	}
	_ = s.enc.Encode(l)

	if s.tracker == nil {
		return
	}
	switch e.Type {
	case events.TypeRunComplete:
		s.writeSummary("complete", e.SessionID)
	case events.TypeRunError:
		s.writeSummary("error", e.SessionID)
	}
}

func (s *Sink) writeSummary(status, sessionID string) {
	snap := s.tracker.Snapshot(sessionID)
	_ = s.enc.Encode(summaryLine{Status: status, Type: "agent.run.summary", Metrics: snap})
	s.tracker.Reset(sessionID)
}
