package analytics

import "time"

// EventType classifies analytics events.
type EventType string

const (
	EventQuery  EventType = "query"
	EventReload EventType = "index_reload"
)

// QueryEvent describes one resolved query. Text is never included; only its
// size and the outcome.
type QueryEvent struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id"`
	TextLength int       `json:"text_length"`
	Shingles   int       `json:"shingles"`
	Threshold  float64   `json:"threshold"`
	Matched    bool      `json:"matched"`
	Reason     string    `json:"reason,omitempty"`
	MatchID    string    `json:"match_id,omitempty"`
	Distance   float64   `json:"distance,omitempty"`
	Candidates int       `json:"candidates"`
	Verified   int       `json:"verified"`
	Inserted   bool      `json:"inserted"`
	CacheHit   bool      `json:"cache_hit"`
	LatencyMs  float64   `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

