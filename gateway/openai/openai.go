// Package openai backs the agent gateway roles with the OpenAI API: chat
// completions for research, structuring and writing, image generation for
// illustrations. It adapts the uniform AgentRequest/AgentResponse envelope
// into SDK calls and classifies SDK failures into the transient/fatal
// taxonomy at this boundary.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/gateway"
)

const researchSystemPrompt = `You are an expert researcher. Answer the research question
concisely and factually, citing concrete facts where possible.`

const structureSystemPrompt = `You are an expert document planner. Produce a JSON object
with fields "title" and "sections"; each section has "title", "brief",
"wants_image" (boolean) and "image_prompt". Respond with JSON only.`

const writeSystemPrompt = `You are an expert content writer. Write the requested report
section in Markdown without a top-level heading.`

// Options configure the OpenAI gateway backend. Fields mirror a subset of the
// API parameters intentionally kept minimal; extend via functional options
// without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	ImageModel          openai.ImageModel
	ImageSize           openai.ImageGenerateParamsSize
}

// Agent services gateway roles through the official OpenAI client.
type Agent struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI backend using the default client (API key from
// the environment).
func New(optFns ...func(o *Options)) *Agent {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI backend from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.3,
		MaxCompletionTokens: 4096,
		ImageModel:          openai.ImageModelDallE3,
		ImageSize:           openai.ImageGenerateParamsSize1792x1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, opts: opts}
}

// RegisterRoles binds all four collaborator roles to this backend.
func (a *Agent) RegisterRoles(g *gateway.Gateway) {
	g.RegisterFunc(core.RoleResearch, a.Research)
	g.RegisterFunc(core.RoleStructure, a.Structure)
	g.RegisterFunc(core.RoleWrite, a.Write)
	g.RegisterFunc(core.RoleImage, a.Image)
}

// Research answers one research question as a Finding.
func (a *Agent) Research(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	prompt := fmt.Sprintf("Topic: %s\nQuestion: %s", req.Topic, req.Question)
	text, err := a.complete(ctx, researchSystemPrompt, prompt)
	if err != nil {
		return core.AgentResponse{}, err
	}
	return core.AgentResponse{Finding: &core.Finding{Question: req.Question, Summary: text}}, nil
}

// Structure turns accumulated findings into a document outline. A malformed
// JSON reply degrades to a single overview section rather than failing the
// stage.
func (a *Agent) Structure(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nTemplate: %s\nAt most %d sections.\n\nResearch findings:\n",
		req.Topic, templateOrDefault(req.Template), req.MaxSections)
	for _, f := range req.Findings {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Question, f.Summary)
	}

	text, err := a.complete(ctx, structureSystemPrompt, sb.String())
	if err != nil {
		return core.AgentResponse{}, err
	}
	outline := ParseOutline(text, req)
	return core.AgentResponse{Outline: outline}, nil
}

// Write produces the content block for one outline section.
func (a *Agent) Write(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	if req.Section == nil {
		return core.AgentResponse{}, core.Fatalf("write request without section")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Report topic: %s\nSection: %s\nBrief: %s\n\nRelevant findings:\n",
		req.Topic, req.Section.Title, req.Section.Brief)
	for _, f := range req.Findings {
		fmt.Fprintf(&sb, "- %s: %s\n", f.Question, f.Summary)
	}

	text, err := a.complete(ctx, writeSystemPrompt, sb.String())
	if err != nil {
		return core.AgentResponse{}, err
	}
	return core.AgentResponse{Block: &core.ContentBlock{
		Section:  req.Section.Title,
		Markdown: text,
		Order:    req.SectionIndex,
	}}, nil
}

// Image generates one illustration and returns its reference.
func (a *Agent) Image(ctx context.Context, req core.AgentRequest) (core.AgentResponse, error) {
	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, req.Style)
	}
	resp, err := a.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  a.opts.ImageModel,
		Size:   a.opts.ImageSize,
	})
	if err != nil {
		return core.AgentResponse{}, classify(err)
	}
	if len(resp.Data) == 0 {
		return core.AgentResponse{}, core.Fatalf("image api returned no data")
	}
	section := ""
	if req.Section != nil {
		section = req.Section.Title
	}
	return core.AgentResponse{Image: &core.ImageRef{
		Section: section,
		Prompt:  req.Prompt,
		URL:     resp.Data[0].URL,
		AltText: section,
		Order:   req.SectionIndex,
	}}, nil
}

// complete issues a single non-streaming chat completion.
func (a *Agent) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", core.Fatalf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps SDK failures onto the two-bucket taxonomy. Rate limits,
// request timeouts and server-side errors are transient; everything else the
// API rejects is fatal. Context-level outcomes pass through untouched.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apierr *openai.Error
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
	// No HTTP status: connection-level failure, assume retryable.
	return core.Transient(err)
}

// outlineWire is the JSON shape requested from the structure prompt.
type outlineWire struct {
	Title    string `json:"title"`
	Sections []struct {
		Title       string `json:"title"`
		Brief       string `json:"brief"`
		WantsImage  bool   `json:"wants_image"`
		ImagePrompt string `json:"image_prompt"`
	} `json:"sections"`
}

// ParseOutline decodes a model's outline JSON reply, falling back to a
// single overview section when the reply is not parseable. The wire format is
// shared by every text backend that prompts for the same JSON shape.
func ParseOutline(text string, req core.AgentRequest) *core.Outline {
	var wire outlineWire
	if err := json.Unmarshal([]byte(stripFences(text)), &wire); err != nil || len(wire.Sections) == 0 {
		return &core.Outline{
			Title:    req.Topic,
			Template: templateOrDefault(req.Template),
			Sections: []core.OutlineSection{{Title: "Overview", Brief: req.Topic}},
		}
	}
	outline := &core.Outline{
		Title:    wire.Title,
		Template: templateOrDefault(req.Template),
		Sections: make([]core.OutlineSection, len(wire.Sections)),
	}
	if outline.Title == "" {
		outline.Title = req.Topic
	}
	for i, s := range wire.Sections {
		outline.Sections[i] = core.OutlineSection{
			Title:       s.Title,
			Brief:       s.Brief,
			WantsImage:  s.WantsImage,
			ImagePrompt: s.ImagePrompt,
		}
	}
	return outline
}

// stripFences removes a Markdown code fence wrapper if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func templateOrDefault(template string) string {
	if template == "" {
		return "standard"
	}
	return template
}
