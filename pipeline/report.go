package pipeline

import (
	"fmt"

	"github.com/hupe1980/reportmesh/core"
)

// Canonical report pipeline stage names.
const (
	StageResearch  = "research"
	StageStructure = "structure"
	StageWrite     = "write"
	StageImage     = "image"
)

// Stage weights mirror each stage's share of wall-clock work so derived
// progress tracks user expectation: research 25%, structure 25%, write 30%,
// image 20%.
const (
	researchWeight  = 25
	structureWeight = 25
	writeWeight     = 30
	imageWeight     = 20
)

// DefaultMaxSections bounds outline size when the request does not set one.
const DefaultMaxSections = 5

// ReportGraph builds the canonical report pipeline:
//
//	research → structure → {write, image}
//
// Research fans out over generated research questions, write fans out over
// outline sections, image (the only optional stage) fans out over sections
// that request an illustration. Assembly is not a graph stage; the
// orchestrator invokes the assembly collaborator once the graph is terminal.
func ReportGraph() *Graph {
	return MustGraph(
		&Stage{
			Name:   StageResearch,
			Weight: researchWeight,
			Expand: expandResearch,
			Merge:  mergeResearch,
		},
		&Stage{
			Name:      StageStructure,
			DependsOn: []string{StageResearch},
			Weight:    structureWeight,
			Expand:    expandStructure,
			Merge:     mergeStructure,
		},
		&Stage{
			Name:      StageWrite,
			DependsOn: []string{StageStructure},
			Weight:    writeWeight,
			Expand:    expandWrite,
			Merge:     mergeWrite,
		},
		&Stage{
			Name:      StageImage,
			DependsOn: []string{StageStructure},
			Optional:  true,
			Weight:    imageWeight,
			Skip:      func(task *core.Task) bool { return !task.Config.IncludeImages },
			Expand:    expandImage,
			Merge:     mergeImage,
		},
	)
}

// ResearchQuestions derives the research fan-out set for a topic.
func ResearchQuestions(topic string) []string {
	return []string{
		fmt.Sprintf("What is %s?", topic),
		fmt.Sprintf("Latest developments in %s", topic),
		fmt.Sprintf("Key statistics about %s", topic),
		fmt.Sprintf("Future trends for %s", topic),
	}
}

func expandResearch(task *core.Task) ([]core.WorkUnit, error) {
	questions := ResearchQuestions(task.Topic)
	units := make([]core.WorkUnit, len(questions))
	for i, q := range questions {
		units[i] = core.WorkUnit{
			Stage: StageResearch,
			Index: i,
			Role:  core.RoleResearch,
			Request: core.AgentRequest{
				Topic:    task.Topic,
				Question: q,
			},
		}
	}
	return units, nil
}

func mergeResearch(_ *core.Task, outs []core.AgentResponse) (core.StageOutput, error) {
	findings := make([]core.Finding, 0, len(outs))
	for i, out := range outs {
		if out.Finding == nil {
			return nil, core.Fatalf("research unit %d returned no finding", i)
		}
		findings = append(findings, *out.Finding)
	}
	return core.FindingsOutput{Findings: findings}, nil
}

func expandStructure(task *core.Task) ([]core.WorkUnit, error) {
	maxSections := task.Config.MaxSections
	if maxSections <= 0 {
		maxSections = DefaultMaxSections
	}
	return []core.WorkUnit{{
		Stage: StageStructure,
		Index: 0,
		Role:  core.RoleStructure,
		Request: core.AgentRequest{
			Topic:       task.Topic,
			Template:    task.Config.Template,
			Findings:    task.Document.Findings,
			MaxSections: maxSections,
		},
	}}, nil
}

func mergeStructure(task *core.Task, outs []core.AgentResponse) (core.StageOutput, error) {
	if len(outs) != 1 || outs[0].Outline == nil {
		return nil, core.Fatalf("structure stage returned no outline")
	}
	outline := outs[0].Outline
	if len(outline.Sections) == 0 {
		return nil, core.Fatalf("structure stage returned an empty outline")
	}
	maxSections := task.Config.MaxSections
	if maxSections <= 0 {
		maxSections = DefaultMaxSections
	}
	if len(outline.Sections) > maxSections {
		outline.Sections = outline.Sections[:maxSections]
	}
	return core.OutlineOutput{Outline: outline}, nil
}

func expandWrite(task *core.Task) ([]core.WorkUnit, error) {
	outline := task.Document.Outline
	if outline == nil {
		return nil, core.Fatalf("write stage requires an outline")
	}
	units := make([]core.WorkUnit, len(outline.Sections))
	for i := range outline.Sections {
		section := outline.Sections[i]
		units[i] = core.WorkUnit{
			Stage: StageWrite,
			Index: i,
			Role:  core.RoleWrite,
			Request: core.AgentRequest{
				Topic:        task.Topic,
				Findings:     task.Document.Findings,
				Section:      &section,
				SectionIndex: i,
			},
		}
	}
	return units, nil
}

func mergeWrite(_ *core.Task, outs []core.AgentResponse) (core.StageOutput, error) {
	blocks := make([]core.ContentBlock, 0, len(outs))
	for i, out := range outs {
		if out.Block == nil {
			return nil, core.Fatalf("write unit %d returned no content block", i)
		}
		blocks = append(blocks, *out.Block)
	}
	return core.BlocksOutput{Blocks: blocks}, nil
}

func expandImage(task *core.Task) ([]core.WorkUnit, error) {
	outline := task.Document.Outline
	if outline == nil {
		return nil, core.Fatalf("image stage requires an outline")
	}
	var units []core.WorkUnit
	for i, section := range outline.Sections {
		if !section.WantsImage {
			continue
		}
		prompt := section.ImagePrompt
		if prompt == "" {
			prompt = fmt.Sprintf("Illustration for %q in a report about %s", section.Title, task.Topic)
		}
		units = append(units, core.WorkUnit{
			Stage: StageImage,
			Index: i,
			Role:  core.RoleImage,
			Request: core.AgentRequest{
				Topic:  task.Topic,
				Prompt: prompt,
				Style:  "abstract",
				Section: &core.OutlineSection{
					Title: section.Title,
				},
				SectionIndex: i,
			},
		})
	}
	return units, nil
}

func mergeImage(_ *core.Task, outs []core.AgentResponse) (core.StageOutput, error) {
	images := make([]core.ImageRef, 0, len(outs))
	for _, out := range outs {
		if out.Image == nil {
			continue
		}
		images = append(images, *out.Image)
	}
	return core.ImagesOutput{Images: images}, nil
}
