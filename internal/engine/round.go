package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/tern/internal/breaker"
)

// interruptionNotice is appended as the assistant's content when the user
// stops a stream mid-flight.
const interruptionNotice = "[interrupted by user]"

type roundOutcome int

const (
	outcomeDone roundOutcome = iota // no tool calls left: return to idle
	outcomeContinue                 // auto tools executed or rejection appended: next round
	outcomeAwaitConfirm             // confirm-required batch surfaced: stop and wait
	outcomeInterrupted              // stop honored: already transitioned
)

// runLoop drives rounds until the session goes idle, pauses for
// confirmation, or fails. It owns all history mutation for the run.
func (s *Session) runLoop(ctx context.Context) {
	for {
		if s.stops != nil {
			if d := s.stops.ShouldStop(); d.Stop {
				s.setError(errors.New(d.Reason))
				s.releaseRunLock()
				return
			}
		}

		outcome, err := s.runRound(ctx)
		if err != nil {
			if IsTransient(err) && s.retryCount < s.cfg.MaxRetries {
				delay := s.backoffDelay()
				s.retryCount++
				s.emit("retry_attempt", map[string]any{
					"attempt": s.retryCount,
					"max":     s.cfg.MaxRetries,
					"delay":   delay.String(),
					"error":   err.Error(),
				})
				// Idle between attempts; the next round is scheduled, not
				// spinning.
				s.setStatus(StatusIdle)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					s.releaseRunLock()
					return
				}
				s.setStatus(StatusResponding)
				continue
			}
			s.mu.Lock()
			s.consecErrors++
			s.mu.Unlock()
			if s.stops != nil {
				s.stops.IncrementError()
			}
			s.setError(err)
			s.releaseRunLock()
			return
		}

		s.mu.Lock()
		s.retryCount = 0
		s.consecErrors = 0
		s.mu.Unlock()
		if s.stops != nil {
			s.stops.IncrementStep()
		}

		switch outcome {
		case outcomeContinue:
			continue
		case outcomeAwaitConfirm:
			s.releaseRunLock()
			return
		default: // outcomeDone, outcomeInterrupted
			s.setStatus(StatusIdle)
			s.releaseRunLock()
			return
		}
	}
}

func (s *Session) backoffDelay() time.Duration {
	delay := s.cfg.InitialBackoff
	for i := 0; i < s.retryCount; i++ {
		delay *= 2
	}
	// 0-20% jitter.
	return delay + time.Duration(rand.Int63n(int64(delay)/5 + 1))
}

// runRound wraps one round with the rollback guarantee: any failure
// restores the history to its length at round start, so a half-built
// assistant message or tool-request never persists across a failed round.
func (s *Session) runRound(ctx context.Context) (roundOutcome, error) {
	s.mu.Lock()
	consec := s.consecErrors
	s.mu.Unlock()
	if consec >= s.cfg.MaxConsecutiveErrors {
		return 0, &FatalError{Err: fmt.Errorf("aborting: %d consecutive rounds failed", consec)}
	}

	snap := s.historyLen()
	outcome, err := s.doRound(ctx)
	if err != nil {
		s.rollbackTo(snap)
		return 0, err
	}
	return outcome, nil
}

// streamResult accumulates one round's streamed output.
type streamResult struct {
	assistant   *AssistantItem
	toolCalls   []ToolCall
	usage       Usage
	interrupted bool
}

func (s *Session) doRound(ctx context.Context) (roundOutcome, error) {
	// Per-round cancel releases provider goroutines once we stop consuming.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := TranslateHistory(s.History())
	if s.cfg.SystemPrompt != "" {
		msgs = append([]ChatMessage{{Role: RoleSystem, Content: s.cfg.SystemPrompt}}, msgs...)
	}
	msgs = TrimToBudget(msgs, s.cfg.TokenBudget)

	s.metrics.recordRequest()

	var sr streamResult
	consume := func(ctx context.Context) error { return s.consumeStream(ctx, msgs, &sr) }
	var err error
	if s.brk != nil {
		err = s.brk.Do(ctx, consume)
		if errors.Is(err, breaker.ErrOpen) {
			err = &TransientError{Err: err}
		}
	} else {
		err = consume(ctx)
	}

	if sr.interrupted {
		return s.finishInterrupted(&sr), nil
	}
	if err != nil {
		return 0, err
	}

	s.metrics.recordUsage(s.cfg.Model, sr.usage)
	if s.stops != nil {
		s.stops.AddTokens(sr.usage.Total)
		if s.cfg.CostPerTokenUSD > 0 {
			s.stops.AddCost(float64(sr.usage.Total) * s.cfg.CostPerTokenUSD)
		}
	}

	// Stop flag check after stream completion, before acting on tool calls.
	if s.stopRequested() {
		return s.finishInterrupted(&sr), nil
	}

	calls := sanitizeToolCalls(sr.toolCalls)
	calls = rewriteCreateCalls(calls)

	var auto, confirm []ToolCall
	for _, c := range calls {
		if autoExecTools[c.Name] {
			auto = append(auto, c)
		} else {
			confirm = append(confirm, c)
		}
	}

	if len(auto) > 0 {
		s.appendItem(&ToolRequestItem{ID: NewItemID(), Calls: auto})
		s.executeBatch(ctx, auto)
	}

	if len(confirm) > 0 {
		if risk := MaxRisk(confirm); risk == RiskCritical {
			s.setStatus(StatusCheckpointRequest)
			req := approvalRequestFor(confirm)
			s.emit("checkpoint", req)
			dec := resolveApproval(ctx, s.gate, req)
			if !dec.Approved {
				reason := dec.Reason
				if reason == "" {
					reason = "denied by policy"
				}
				s.appendItem(&UserItem{
					ID:      NewItemID(),
					Content: "High-risk tool execution was blocked: " + reason + ". Choose a safer approach.",
				})
				s.setStatus(StatusResponding)
				return outcomeContinue, nil
			}
		}
		s.mu.Lock()
		s.pendingCalls = confirm
		s.history = append(s.history, &ToolRequestItem{ID: NewItemID(), Calls: confirm})
		s.setStatusLocked(StatusToolRequest)
		s.mu.Unlock()
		s.emit("history_changed", len(s.History()))
		return outcomeAwaitConfirm, nil
	}

	if len(auto) > 0 {
		return outcomeContinue, nil
	}
	return outcomeDone, nil
}

// consumeStream issues the LLM call and consumes its event stream through
// the think filter, growing the assistant history item as filtered text
// arrives. A rolling inactivity timer bounds the gap between chunks.
func (s *Session) consumeStream(ctx context.Context, msgs []ChatMessage, out *streamResult) error {
	deltaCh, errCh := s.llm.Stream(ctx, s.cfg.Model, msgs, s.tools.Schemas(), ChatOptions{
		Temperature:     s.cfg.Temperature,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
	})

	filter := NewThinkFilter()
	timer := time.NewTimer(s.cfg.StreamTimeout)
	defer timer.Stop()

	for deltaCh != nil || errCh != nil {
		select {
		case ev, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				continue
			}
			if s.stopRequested() {
				out.interrupted = true
				return nil
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.cfg.StreamTimeout)

			switch ev.Type {
			case "text_delta":
				if txt := filter.Filter(ev.Text); txt != "" {
					s.appendAssistantText(out, txt)
					s.emit("delta", txt)
				}
			case "tool_call":
				out.toolCalls = append(out.toolCalls, ev.ToolCall)
			case "usage":
				out.usage = ev.Usage
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}

		case <-timer.C:
			return Transientf("stream timeout: no data received for %s", s.cfg.StreamTimeout)
		}
	}

	if rest := filter.Flush(); rest != "" {
		s.appendAssistantText(out, rest)
		s.emit("delta", rest)
	}
	s.finalizeAssistant(out)
	return nil
}

// appendAssistantText lazily creates the round's assistant item on the
// first non-empty chunk and grows its content in place.
func (s *Session) appendAssistantText(out *streamResult, txt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.assistant == nil {
		out.assistant = &AssistantItem{ID: NewItemID()}
		s.history = append(s.history, out.assistant)
	}
	out.assistant.Content += txt
}

func (s *Session) finalizeAssistant(out *streamResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.assistant != nil {
		out.assistant.Content = strings.TrimSpace(out.assistant.Content)
	}
}

// finishInterrupted appends the interruption notice, clears the stop flag
// and reports the round as interrupted. This path runs whether the stream
// was otherwise going to succeed or fail.
func (s *Session) finishInterrupted(out *streamResult) roundOutcome {
	s.mu.Lock()
	if out.assistant == nil {
		out.assistant = &AssistantItem{ID: NewItemID()}
		s.history = append(s.history, out.assistant)
	}
	if out.assistant.Content != "" {
		out.assistant.Content = strings.TrimSpace(out.assistant.Content) + "\n\n"
	}
	out.assistant.Content += interruptionNotice
	s.stopFlag = false
	s.setStatusLocked(StatusInterrupted)
	s.mu.Unlock()
	return outcomeInterrupted
}

// sanitizeToolCalls drops calls missing a call id or name. Malformed calls
// are never forwarded to tools.
func sanitizeToolCalls(calls []ToolCall) []ToolCall {
	out := calls[:0]
	for _, c := range calls {
		if c.ID == "" || c.Name == "" {
			log.Printf("WARN: dropping malformed tool call (id=%q name=%q)", c.ID, c.Name)
			continue
		}
		out = append(out, c)
	}
	return out
}

// rewriteCreateCalls applies the single permitted safety rewrite: a create
// call whose target already exists on disk and which carries literal
// content becomes an edit with an overwrite action, so the model's intent
// ("put this content at this path") succeeds instead of erroring on a
// redundant create. Runs before auto/confirm classification.
func rewriteCreateCalls(calls []ToolCall) []ToolCall {
	for i, c := range calls {
		if c.Name != "create" {
			continue
		}
		path, _ := c.Args["path"].(string)
		content, hasContent := c.Args["content"].(string)
		if path == "" || !hasContent {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		calls[i] = ToolCall{
			ID:   c.ID,
			Name: "edit",
			Args: map[string]any{
				"path": path,
				"edit": map[string]any{"type": "overwrite", "content": content},
			},
		}
		log.Printf("rewrote create -> edit(overwrite) for existing path %s", path)
	}
	return calls
}

// executeBatch runs auto-executable calls concurrently through the
// dispatcher. Results are appended in completion order; the request item
// and its results stay contiguous because nothing else mutates history
// while the round runs.
func (s *Session) executeBatch(ctx context.Context, calls []ToolCall) {
	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(c ToolCall) {
			defer wg.Done()
			s.emit("tool_start", c.Name)
			out, err := s.tools.Dispatch(ctx, c)
			s.recordToolOutcome(c, out, err)
		}(call)
	}
	wg.Wait()
}

// executeConfirmed runs the confirmed batch sequentially, honoring a
// mid-batch stop by synthesizing a cancellation failure per remaining call
// instead of aborting abruptly, then resumes the loop.
func (s *Session) executeConfirmed(ctx context.Context, calls []ToolCall) {
	for _, c := range calls {
		if s.stopRequested() {
			s.appendItem(&ToolFailureItem{
				ID:         NewItemID(),
				ToolCallID: c.ID,
				ToolName:   c.Name,
				Error:      "cancelled before execution",
			})
			continue
		}
		s.emit("tool_start", c.Name)
		out, err := s.tools.Dispatch(ctx, c)
		s.recordToolOutcome(c, out, err)
	}

	if s.stopRequested() {
		s.clearStopFlag()
		s.setStatus(StatusIdle)
		s.releaseRunLock()
		return
	}

	s.setStatus(StatusResponding)
	s.runLoop(ctx)
}

func (s *Session) recordToolOutcome(c ToolCall, out string, err error) {
	if err != nil {
		s.metrics.recordTool(c.Name, false)
		s.appendItem(&ToolFailureItem{
			ID:         NewItemID(),
			ToolCallID: c.ID,
			ToolName:   c.Name,
			Error:      err.Error(),
		})
		s.emit("tool_done", map[string]string{"tool": c.Name, "error": err.Error()})
		return
	}
	s.metrics.recordTool(c.Name, true)
	s.appendItem(&ToolResultItem{
		ID:         NewItemID(),
		ToolCallID: c.ID,
		ToolName:   c.Name,
		Output:     out,
	})
	s.emit("tool_done", map[string]string{"tool": c.Name})
}

func approvalRequestFor(calls []ToolCall) ApprovalRequest {
	// Report the first critical call; one approval covers the batch.
	for _, c := range calls {
		if ClassifyRisk(c) == RiskCritical {
			path, _ := c.Args["path"].(string)
			return ApprovalRequest{
				Operation:   c.Name,
				Risk:        RiskCritical,
				FilePath:    path,
				Description: fmt.Sprintf("tool %s requested with critical risk", c.Name),
			}
		}
	}
	return ApprovalRequest{Operation: "batch", Risk: MaxRisk(calls)}
}
