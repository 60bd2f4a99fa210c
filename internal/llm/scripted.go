package llm

import (
	"context"
	"sync"
)

// HandlerFunc answers a scripted completion.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// ScriptedCompleter is a deterministic Completer for tests and offline runs.
// Handlers are looked up by Purpose, then Fallback is used.
type ScriptedCompleter struct {
	mu       sync.Mutex
	handlers map[Purpose]HandlerFunc
	Fallback HandlerFunc
	calls    []Request
}

// NewScripted creates a completer with no handlers; unanswered calls fail.
func NewScripted() *ScriptedCompleter {
	return &ScriptedCompleter{handlers: make(map[Purpose]HandlerFunc)}
}

// On registers the handler for a purpose and returns the completer for chaining.
func (s *ScriptedCompleter) On(p Purpose, h HandlerFunc) *ScriptedCompleter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[p] = h
	return s
}

// Reply registers a fixed response for a purpose.
func (s *ScriptedCompleter) Reply(p Purpose, text string) *ScriptedCompleter {
	return s.On(p, func(context.Context, Request) (string, error) { return text, nil })
}

// Fail registers a fixed error for a purpose.
func (s *ScriptedCompleter) Fail(p Purpose, err error) *ScriptedCompleter {
	return s.On(p, func(context.Context, Request) (string, error) { return "", err })
}

func (s *ScriptedCompleter) Model() string { return "scripted" }

func (s *ScriptedCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	h, ok := s.handlers[req.Purpose]
	if !ok {
		h = s.Fallback
	}
	s.mu.Unlock()

	if h == nil {
		return Disabled{}.Complete(ctx, req)
	}
	return h(ctx, req)
}

// Calls returns a copy of every request received so far.
func (s *ScriptedCompleter) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// CallCount returns how many requests had the given purpose.
func (s *ScriptedCompleter) CallCount(p Purpose) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Purpose == p {
			n++
		}
	}
	return n
}
