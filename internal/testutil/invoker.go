package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/reportmesh/core"
)

// Call records one collaborator invocation observed by a StubInvoker.
type Call struct {
	Role    core.Role
	Request core.AgentRequest
}

// StubInvoker is a scriptable core.Invoker for tests. Responses are produced
// per role by script functions; unscripted roles fall back to canned outputs
// so a fully wired pipeline run succeeds without any setup. The stub also
// tracks the number of concurrently in-flight invocations, which tests use
// to assert budget enforcement.
type StubInvoker struct {
	mu       sync.Mutex
	scripts  map[core.Role]func(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error)
	calls    []Call
	inFlight int
	maxSeen  int

	// Block, when non-nil, is closed by the test to release invocations
	// that should park mid-flight.
	Block chan struct{}
}

// NewStubInvoker creates a stub whose roles all succeed with canned output.
func NewStubInvoker() *StubInvoker {
	return &StubInvoker{
		scripts: make(map[core.Role]func(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error)),
	}
}

// Script installs a response function for a role (chainable).
func (s *StubInvoker) Script(role core.Role, fn func(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error)) *StubInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[role] = fn
	return s
}

// FailRole makes every invocation of the role return err (chainable).
func (s *StubInvoker) FailRole(role core.Role, err error) *StubInvoker {
	return s.Script(role, func(context.Context, core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{}, err
	})
}

// FailUnit makes the role fail with err for the given section index and
// succeed with canned output otherwise (chainable).
func (s *StubInvoker) FailUnit(role core.Role, index int, err error) *StubInvoker {
	return s.Script(role, func(_ context.Context, req core.AgentRequest) (core.AgentResponse, error) {
		if req.SectionIndex == index {
			return core.AgentResponse{}, err
		}
		return cannedResponse(role, req), nil
	})
}

// FailTimes makes the role fail with err for the first n invocations and
// succeed afterwards, which is the shape retry tests need (chainable).
func (s *StubInvoker) FailTimes(role core.Role, n int, err error) *StubInvoker {
	var mu sync.Mutex
	remaining := n
	return s.Script(role, func(_ context.Context, req core.AgentRequest) (core.AgentResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if remaining > 0 {
			remaining--
			return core.AgentResponse{}, err
		}
		return cannedResponse(role, req), nil
	})
}

// Invoke implements core.Invoker.
func (s *StubInvoker) Invoke(ctx context.Context, role core.Role, req core.AgentRequest) (core.AgentResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Role: role, Request: req})
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	script := s.scripts[role]
	block := s.Block
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return core.AgentResponse{}, core.Cancellation(ctx.Err().Error())
		}
	}
	if err := ctx.Err(); err != nil {
		return core.AgentResponse{}, core.Cancellation(err.Error())
	}
	if script != nil {
		return script(ctx, req)
	}
	return cannedResponse(role, req), nil
}

// Calls returns a copy of all recorded invocations.
func (s *StubInvoker) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times the role was invoked.
func (s *StubInvoker) CallCount(role core.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Role == role {
			n++
		}
	}
	return n
}

// MaxConcurrent returns the highest number of simultaneously in-flight
// invocations observed so far.
func (s *StubInvoker) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

func cannedResponse(role core.Role, req core.AgentRequest) core.AgentResponse {
	switch role {
	case core.RoleResearch:
		return core.AgentResponse{Finding: &core.Finding{
			Question: req.Question,
			Summary:  fmt.Sprintf("findings for %q", req.Question),
		}}
	case core.RoleStructure:
		return core.AgentResponse{Outline: CannedOutline(req.Topic)}
	case core.RoleWrite:
		title := fmt.Sprintf("Section %d", req.SectionIndex+1)
		if req.Section != nil {
			title = req.Section.Title
		}
		return core.AgentResponse{Block: &core.ContentBlock{
			Section:  title,
			Markdown: fmt.Sprintf("Content for %s.", title),
			Order:    req.SectionIndex,
		}}
	case core.RoleImage:
		section := ""
		if req.Section != nil {
			section = req.Section.Title
		}
		return core.AgentResponse{Image: &core.ImageRef{
			Section: section,
			Prompt:  req.Prompt,
			URL:     fmt.Sprintf("https://images.example/%d.png", req.SectionIndex),
			AltText: req.Prompt,
			Order:   req.SectionIndex,
		}}
	default:
		return core.AgentResponse{}
	}
}

// CannedOutline returns a deterministic three-section outline whose second
// section requests an image. Tests use it as the default structure output.
func CannedOutline(topic string) *core.Outline {
	return &core.Outline{
		Title: "Report: " + topic,
		Sections: []core.OutlineSection{
			{Title: "Introduction", Brief: "Introduce " + topic},
			{Title: "Analysis", Brief: "Analyze " + topic, WantsImage: true, ImagePrompt: "diagram of " + topic},
			{Title: "Conclusion", Brief: "Conclude on " + topic},
		},
	}
}
