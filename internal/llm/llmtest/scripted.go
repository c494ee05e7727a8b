// Package llmtest provides a scripted model client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrz1836/forge/internal/llm"
)

// Reply is one scripted answer: either Text or Err.
type Reply struct {
	Text string
	Err  error
}

// Scripted returns queued replies per node. When a node's queue is empty the
// fallback for that node is returned, or an error if none is set.
type Scripted struct {
	mu       sync.Mutex
	queues   map[string][]Reply
	fallback map[string]Reply
	calls    []llm.Request
}

// NewScripted creates an empty Scripted client.
func NewScripted() *Scripted {
	return &Scripted{
		queues:   make(map[string][]Reply),
		fallback: make(map[string]Reply),
	}
}

// Queue appends text replies for node.
func (s *Scripted) Queue(node string, texts ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range texts {
		s.queues[node] = append(s.queues[node], Reply{Text: t})
	}
	return s
}

// QueueError appends an error reply for node.
func (s *Scripted) QueueError(node string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[node] = append(s.queues[node], Reply{Err: err})
	return s
}

// Always sets the reply returned for node once its queue is drained.
func (s *Scripted) Always(node, text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback[node] = Reply{Text: text}
	return s
}

// Complete implements llm.Client.
func (s *Scripted) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if q := s.queues[req.Node]; len(q) > 0 {
		r := q[0]
		s.queues[req.Node] = q[1:]
		return r.Text, r.Err
	}
	if r, ok := s.fallback[req.Node]; ok {
		return r.Text, r.Err
	}
	return "", &llm.ModelError{Node: req.Node, Kind: llm.KindInvocation, Attempts: 1, Err: fmt.Errorf("no scripted reply for node %q", req.Node)}
}

// Calls returns a copy of every request received.
func (s *Scripted) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.calls...)
}

// CallsFor counts requests issued by node.
func (s *Scripted) CallsFor(node string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Node == node {
			n++
		}
	}
	return n
}

var _ llm.Client = (*Scripted)(nil)
