package engine

import "sync"

// MetricsSnapshot is a point-in-time copy of the session counters, safe to
// read concurrently with the run-loop.
type MetricsSnapshot struct {
	Requests     int
	ToolSuccess  map[string]int
	ToolFailure  map[string]int
	UsageByModel map[string]Usage
}

// Metrics accumulates per-session counters. Held in memory only; nothing
// here is persisted.
type Metrics struct {
	mu           sync.Mutex
	requests     int
	toolSuccess  map[string]int
	toolFailure  map[string]int
	usageByModel map[string]Usage
}

// NewMetrics returns an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		toolSuccess:  make(map[string]int),
		toolFailure:  make(map[string]int),
		usageByModel: make(map[string]Usage),
	}
}

func (m *Metrics) recordRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *Metrics) recordTool(name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.toolSuccess[name]++
	} else {
		m.toolFailure[name]++
	}
}

func (m *Metrics) recordUsage(model string, u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.usageByModel[model]
	total.Prompt += u.Prompt
	total.Completion += u.Completion
	total.Total += u.Total
	m.usageByModel[model] = total
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MetricsSnapshot{
		Requests:     m.requests,
		ToolSuccess:  make(map[string]int, len(m.toolSuccess)),
		ToolFailure:  make(map[string]int, len(m.toolFailure)),
		UsageByModel: make(map[string]Usage, len(m.usageByModel)),
	}
	for k, v := range m.toolSuccess {
		out.ToolSuccess[k] = v
	}
	for k, v := range m.toolFailure {
		out.ToolFailure[k] = v
	}
	for k, v := range m.usageByModel {
		out.UsageByModel[k] = v
	}
	return out
}
