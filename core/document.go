package core

import "sort"

// Finding captures the outcome of a single research question.
type Finding struct {
	Question string   `json:"question"`
	Summary  string   `json:"summary"`
	Sources  []string `json:"sources,omitempty"`
}

// OutlineSection describes one planned section of the document.
type OutlineSection struct {
	Title       string `json:"title"`
	Brief       string `json:"brief,omitempty"`
	WantsImage  bool   `json:"wants_image,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`
}

// Outline is the structured plan for a document, produced by the structure
// stage and consumed by the write and image stages.
type Outline struct {
	Title    string           `json:"title"`
	Template string           `json:"template"`
	Sections []OutlineSection `json:"sections"`
}

// ContentBlock is the written content for one outline section. Order matches
// the section's position in the outline.
type ContentBlock struct {
	Section  string `json:"section"`
	Markdown string `json:"markdown"`
	Order    int    `json:"order"`
}

// ImageRef points at a generated image for a section. Only a reference is
// held; the binary lives with the external image collaborator.
type ImageRef struct {
	Section string `json:"section"`
	Prompt  string `json:"prompt"`
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
	Order   int    `json:"order"`
}

// Document accumulates the typed outputs of completed stages for one task.
// It is owned by the task store; stage merge functions produce StageOutput
// values that the store folds in under the task's write lock.
type Document struct {
	Topic    string         `json:"topic"`
	Findings []Finding      `json:"findings,omitempty"`
	Outline  *Outline       `json:"outline,omitempty"`
	Blocks   []ContentBlock `json:"blocks,omitempty"`
	Images   []ImageRef     `json:"images,omitempty"`
}

// Clone returns a deep copy safe for independent mutation.
func (d *Document) Clone() Document {
	clone := Document{Topic: d.Topic}
	if d.Findings != nil {
		clone.Findings = make([]Finding, len(d.Findings))
		for i, f := range d.Findings {
			clone.Findings[i] = f
			clone.Findings[i].Sources = append([]string(nil), f.Sources...)
		}
	}
	if d.Outline != nil {
		o := *d.Outline
		o.Sections = append([]OutlineSection(nil), d.Outline.Sections...)
		clone.Outline = &o
	}
	clone.Blocks = append([]ContentBlock(nil), d.Blocks...)
	clone.Images = append([]ImageRef(nil), d.Images...)
	return clone
}

// StageOutput is the merged contribution of a completed stage. Implementations
// form a closed set, one per stage kind, so the store can fold outputs into
// the document without knowing stage semantics.
type StageOutput interface {
	// MergeInto folds the output into the document.
	MergeInto(doc *Document)
}

// FindingsOutput is the research stage contribution.
type FindingsOutput struct {
	Findings []Finding
}

// MergeInto implements StageOutput.
func (o FindingsOutput) MergeInto(doc *Document) {
	doc.Findings = append(doc.Findings, o.Findings...)
}

// OutlineOutput is the structure stage contribution.
type OutlineOutput struct {
	Outline *Outline
}

// MergeInto implements StageOutput.
func (o OutlineOutput) MergeInto(doc *Document) {
	doc.Outline = o.Outline
}

// BlocksOutput is the write stage contribution. Blocks are ordered by their
// outline position regardless of unit completion order.
type BlocksOutput struct {
	Blocks []ContentBlock
}

// MergeInto implements StageOutput.
func (o BlocksOutput) MergeInto(doc *Document) {
	doc.Blocks = append(doc.Blocks, o.Blocks...)
	sort.SliceStable(doc.Blocks, func(i, j int) bool { return doc.Blocks[i].Order < doc.Blocks[j].Order })
}

// ImagesOutput is the image stage contribution.
type ImagesOutput struct {
	Images []ImageRef
}

// MergeInto implements StageOutput.
func (o ImagesOutput) MergeInto(doc *Document) {
	doc.Images = append(doc.Images, o.Images...)
	sort.SliceStable(doc.Images, func(i, j int) bool { return doc.Images[i].Order < doc.Images[j].Order })
}
