package core

import "context"

// Role identifies an external collaborator behind the agent gateway. The set
// is closed: new collaborators are added by declaring a role constant and
// registering a handler, not by open-ended dynamic lookup.
type Role string

// Collaborator roles consumed by the pipeline.
const (
	RoleResearch  Role = "research"
	RoleStructure Role = "structure"
	RoleWrite     Role = "write"
	RoleImage     Role = "image"
)

// AgentRequest is the uniform envelope sent to a collaborator role. Only the
// fields relevant to the addressed role are populated.
type AgentRequest struct {
	// Topic is the overall task topic, set on every request.
	Topic string

	// Question is the research question for RoleResearch.
	Question string

	// Findings, Template and MaxSections feed RoleStructure.
	Findings    []Finding
	Template    string
	MaxSections int

	// Section and SectionIndex address one outline section for RoleWrite.
	Section      *OutlineSection
	SectionIndex int

	// Prompt and Style describe the requested image for RoleImage.
	Prompt string
	Style  string
}

// AgentResponse is the uniform collaborator reply. Exactly one field is set,
// matching the addressed role.
type AgentResponse struct {
	Finding *Finding
	Outline *Outline
	Block   *ContentBlock
	Image   *ImageRef
}

// Invoker is the agent gateway contract. Implementations classify every
// collaborator failure as either transient (retryable) or fatal before it
// crosses this boundary; the rest of the system never sees a backend-native
// error shape.
type Invoker interface {
	Invoke(ctx context.Context, role Role, req AgentRequest) (AgentResponse, error)
}

// WorkUnit is one gateway invocation within a stage's fan-out set. Units are
// transient: they live only for the duration of stage execution.
type WorkUnit struct {
	Stage   string
	Index   int
	Role    Role
	Request AgentRequest
}
