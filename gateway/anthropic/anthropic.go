// Package anthropic backs the text-producing gateway roles (research,
// structure, write) with the Anthropic Messages API. Anthropic exposes no
// image generation endpoint, so deployments pair this backend with another
// vendor's image handler on the same gateway.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/gateway"
	oai "github.com/hupe1980/reportmesh/gateway/openai"
)

// Options configure the Anthropic gateway backend (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Agent services the text gateway roles through the official Anthropic client.
type Agent struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Agent{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, opts: opts}
}

// RegisterRoles binds the research, structure and write roles to this
// backend. The image role is intentionally not registered.
func (a *Agent) RegisterRoles(g *gateway.Gateway) {
	g.RegisterFunc(core.RoleResearch, a.Research)
	g.RegisterFunc(core.RoleStructure, a.Structure)
	g.RegisterFunc(core.RoleWrite, a.Write)
}

// Research answers one research question as a Finding.
func (a *Agent) Research(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	system := "You are an expert researcher. Answer the research question concisely and factually."
	prompt := fmt.Sprintf("Topic: %s\nQuestion: %s", req.Topic, req.Question)
	text, err := a.complete(ctx, system, prompt)
	if err != nil {
		return core.AgentResponse{}, err
	}
	return core.AgentResponse{Finding: &core.Finding{Question: req.Question, Summary: text}}, nil
}

// Structure turns accumulated findings into a document outline.
func (a *Agent) Structure(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	system := `You are an expert document planner. Produce a JSON object with fields "title" and
"sections"; each section has "title", "brief", "wants_image" (boolean) and
"image_prompt". Respond with JSON only.`
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nAt most %d sections.\n\nResearch findings:\n", req.Topic, req.MaxSections)
	for _, f := range req.Findings {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Question, f.Summary)
	}
	text, err := a.complete(ctx, system, sb.String())
	if err != nil {
		return core.AgentResponse{}, err
	}
	return core.AgentResponse{Outline: oai.ParseOutline(text, req)}, nil
}

// Write produces the content block for one outline section.
func (a *Agent) Write(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	if req.Section == nil {
		return core.AgentResponse{}, core.Fatalf("write request without section")
	}
	system := "You are an expert content writer. Write the requested report section in Markdown without a top-level heading."
	var sb strings.Builder
	fmt.Fprintf(&sb, "Report topic: %s\nSection: %s\nBrief: %s\n\nRelevant findings:\n",
		req.Topic, req.Section.Title, req.Section.Brief)
	for _, f := range req.Findings {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Question, f.Summary)
	}
	text, err := a.complete(ctx, system, sb.String())
	if err != nil {
		return core.AgentResponse{}, err
	}
	return core.AgentResponse{Block: &core.ContentBlock{
		Section:  req.Section.Title,
		Markdown: text,
		Order:    req.SectionIndex,
	}}, nil
}

// complete issues a single non-streaming message request and concatenates
// the text blocks of the reply.
func (a *Agent) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", core.Fatalf("no text content returned")
	}
	return sb.String(), nil
}

// classify maps SDK failures onto the two-bucket taxonomy. Overloaded and
// rate-limited replies are transient; validation rejections are fatal.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 408, apierr.StatusCode == 409, apierr.StatusCode == 429:
			return core.Transient(err)
		case apierr.StatusCode >= 500:
			return core.Transient(err)
		default:
			return core.Fatal(err)
		}
	}
	return core.Transient(err)
}
