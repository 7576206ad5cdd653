package engine

import "github.com/google/uuid"

// AgentStatus is the single source of truth for what a session is doing.
// Exactly one status holds at any instant.
type AgentStatus string

const (
	StatusInitializing      AgentStatus = "initializing"
	StatusIdle              AgentStatus = "idle"
	StatusResponding        AgentStatus = "responding"
	StatusToolRequest       AgentStatus = "tool-request"
	StatusCheckpointRequest AgentStatus = "checkpoint-request"
	StatusExecutingTool     AgentStatus = "executing-tool"
	StatusError             AgentStatus = "error"
	StatusInterrupted       AgentStatus = "interrupted"
)

// HistoryItem is one entry in the append-only conversation history.
// It is a closed sum: the five concrete types below are the only
// implementations, so consumers (translator, renderer, store) can switch
// exhaustively.
type HistoryItem interface {
	ItemID() string
	historyItem()
}

// UserItem is a message submitted by the user.
type UserItem struct {
	ID      string
	Content string
}

// AssistantItem is a model reply. Content accumulates incrementally while
// the round's stream is being consumed.
type AssistantItem struct {
	ID      string
	Content string
}

// ToolRequestItem records one round's tool-call requests in model-issued order.
type ToolRequestItem struct {
	ID    string
	Calls []ToolCall
}

// ToolResultItem is the output of one completed tool call.
type ToolResultItem struct {
	ID         string
	ToolCallID string
	ToolName   string
	Output     string
}

// ToolFailureItem records one failed tool call. The error text is fed back
// to the model; it never aborts the round.
type ToolFailureItem struct {
	ID         string
	ToolCallID string
	ToolName   string
	Error      string
}

func (i *UserItem) ItemID() string        { return i.ID }
func (i *AssistantItem) ItemID() string   { return i.ID }
func (i *ToolRequestItem) ItemID() string { return i.ID }
func (i *ToolResultItem) ItemID() string  { return i.ID }
func (i *ToolFailureItem) ItemID() string { return i.ID }

func (*UserItem) historyItem()        {}
func (*AssistantItem) historyItem()   {}
func (*ToolRequestItem) historyItem() {}
func (*ToolResultItem) historyItem()  {}
func (*ToolFailureItem) historyItem() {}

// NewItemID returns a fresh unique history item id.
func NewItemID() string { return uuid.NewString() }
