package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.Invoker = (*Gateway)(nil)

func TestInvoke_UnknownRoleIsFatal(t *testing.T) {
	g := New()

	_, err := g.Invoke(context.Background(), core.RoleResearch, core.AgentRequest{})

	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestInvoke_DispatchesToRegisteredHandler(t *testing.T) {
	g := New()
	g.RegisterFunc(core.RoleResearch, func(_ context.Context, req core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{Finding: &core.Finding{Question: req.Question, Summary: "done"}}, nil
	})

	resp, err := g.Invoke(context.Background(), core.RoleResearch, core.AgentRequest{Question: "q1"})

	require.NoError(t, err)
	require.NotNil(t, resp.Finding)
	assert.Equal(t, "q1", resp.Finding.Question)
}

func TestInvoke_ClassifiedErrorsPassThrough(t *testing.T) {
	g := New()
	transient := core.Transientf("rate limited")
	g.RegisterFunc(core.RoleWrite, func(context.Context, core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{}, transient
	})

	_, err := g.Invoke(context.Background(), core.RoleWrite, core.AgentRequest{})

	assert.True(t, core.IsTransient(err))
	assert.Equal(t, transient, err)
}

func TestInvoke_UnclassifiedErrorBecomesFatal(t *testing.T) {
	g := New()
	g.RegisterFunc(core.RoleWrite, func(context.Context, core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{}, errors.New("backend native failure")
	})

	_, err := g.Invoke(context.Background(), core.RoleWrite, core.AgentRequest{})

	assert.True(t, core.IsFatal(err))
	assert.False(t, core.IsTransient(err))
}

func TestInvoke_ContextErrorsPassThrough(t *testing.T) {
	g := New()
	g.RegisterFunc(core.RoleWrite, func(ctx context.Context, _ core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{}, context.DeadlineExceeded
	})

	_, err := g.Invoke(context.Background(), core.RoleWrite, core.AgentRequest{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, core.IsFatal(err))
}

func TestRegister_ReplacesPreviousHandler(t *testing.T) {
	g := New()
	g.RegisterFunc(core.RoleImage, func(context.Context, core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{}, core.Fatalf("old handler")
	})
	g.RegisterFunc(core.RoleImage, func(context.Context, core.AgentRequest) (core.AgentResponse, error) {
		return core.AgentResponse{Image: &core.ImageRef{URL: "https://images.example/new.png"}}, nil
	})

	resp, err := g.Invoke(context.Background(), core.RoleImage, core.AgentRequest{})

	require.NoError(t, err)
	assert.Equal(t, "https://images.example/new.png", resp.Image.URL)
	assert.Len(t, g.Roles(), 1)
}
