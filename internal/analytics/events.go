package analytics

import "time"

type EventType string

const (
	EventSearch  EventType = "search"
	EventRebuild EventType = "rebuild"
)

// Event is anything the collector can ship.
type Event interface {
	Kind() EventType
}

type SearchEvent struct {
	Type           EventType `json:"type"`
	Question       string    `json:"question"`
	Competition    string    `json:"competition,omitempty"`
	Scope          string    `json:"scope"`
	FellBack       bool      `json:"fell_back"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	Returned       int       `json:"returned"`
	LatencyMs      int64     `json:"latency_ms"`
	CacheHit       bool      `json:"cache_hit"`
	Generation     uint64    `json:"generation"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
}

func (SearchEvent) Kind() EventType { return EventSearch }

type RebuildEvent struct {
	Type       EventType `json:"type"`
	Trigger    string    `json:"trigger"`
	Success    bool      `json:"success"`
	Passages   int       `json:"passages"`
	Generation uint64    `json:"generation"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (RebuildEvent) Kind() EventType { return EventRebuild }
