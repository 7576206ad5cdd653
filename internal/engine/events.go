package engine

// Event is one notification published to the UI layer. Events are
// best-effort: a slow subscriber drops events rather than blocking the
// run-loop.
type Event struct {
	Kind string // "status", "delta", "tool_start", "tool_done", "retry_attempt", "checkpoint", "history_changed"
	Data any
}

func (s *Session) emit(kind string, data any) {
	select {
	case s.events <- Event{Kind: kind, Data: data}:
	default:
	}
}
