package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/logging"
)

// RoleHandler services requests for one collaborator role. Implementations
// must return errors already classified as core.TransientError or
// core.FatalError; unclassified errors are treated as fatal by the gateway.
type RoleHandler interface {
	Handle(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error)
}

// RoleHandlerFunc adapts a function to the RoleHandler interface.
type RoleHandlerFunc func(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error)

// Handle implements RoleHandler.
func (f RoleHandlerFunc) Handle(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	return f(ctx, req)
}

// Options configures a Gateway.
type Options struct {
	// Logger receives per-invocation debug logs.
	Logger logging.Logger
}

// Gateway is the uniform entry point to all external collaborators. Roles
// are registered at wiring time; the table is read-only afterwards, so
// Invoke is safe for concurrent use.
type Gateway struct {
	handlers map[core.Role]RoleHandler
	logger   logging.Logger
}

// New constructs an empty Gateway. Register handlers before first use.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		handlers: make(map[core.Role]RoleHandler),
		logger:   opts.Logger,
	}
}

// Register binds a handler to a role, replacing any previous binding.
// Registration is expected to complete before invocations start.
func (g *Gateway) Register(role core.Role, handler RoleHandler) {
	g.handlers[role] = handler
}

// RegisterFunc binds a handler function to a role.
func (g *Gateway) RegisterFunc(role core.Role, fn RoleHandlerFunc) {
	g.Register(role, fn)
}

// Roles returns the registered role set.
func (g *Gateway) Roles() []core.Role {
	roles := make([]core.Role, 0, len(g.handlers))
	for role := range g.handlers {
		roles = append(roles, role)
	}
	return roles
}

// Invoke implements core.Invoker. Unknown roles fail fatally; handler errors
// that escaped classification are wrapped as fatal so nothing retryable leaks
// through by accident.
func (g *Gateway) Invoke(ctx context.Context, role core.Role, req core.AgentRequest) (core.AgentResponse, error) {
	handler, ok := g.handlers[role]
	if !ok {
		return core.AgentResponse{}, core.Fatalf("no handler registered for role %q", role)
	}

	start := time.Now()
	resp, err := handler.Handle(ctx, req)
	g.logger.Debug("gateway invoked role=%s duration=%s success=%t", role, time.Since(start), err == nil)
	if err != nil {
		return core.AgentResponse{}, g.ensureClassified(err)
	}
	return resp, nil
}

// ensureClassified guarantees the two-bucket contract at the gateway
// boundary. Context cancellation and timeout pass through for the executor
// to interpret against its own deadlines.
func (g *Gateway) ensureClassified(err error) error {
	switch {
	case core.IsTransient(err), core.IsFatal(err), core.IsCancellation(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return core.Fatal(err)
	}
}
