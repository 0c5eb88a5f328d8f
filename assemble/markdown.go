package assemble

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/logging"
)

// Options configure the Markdown assembler.
type Options struct {
	// IncludeFindings appends a research appendix listing every finding.
	IncludeFindings bool
	// Logger receives structured assembly logs.
	Logger logging.Logger
}

// MarkdownAssembler renders the document model to Markdown and stores the
// result in an artifact store.
type MarkdownAssembler struct {
	artifacts       core.ArtifactStore
	includeFindings bool
	logger          logging.Logger
}

// Compile-time interface assertion.
var _ core.Assembler = (*MarkdownAssembler)(nil)

// NewMarkdownAssembler constructs an assembler writing to the given store.
func NewMarkdownAssembler(artifacts core.ArtifactStore, optFns ...func(o *Options)) *MarkdownAssembler {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MarkdownAssembler{
		artifacts:       artifacts,
		includeFindings: opts.IncludeFindings,
		logger:          opts.Logger,
	}
}

// Assemble implements core.Assembler. Sections follow outline order; each
// gets its written block and, when available, its generated image reference.
// Sections whose image failed are simply rendered without one.
func (m *MarkdownAssembler) Assemble(ctx context.Context, taskID string, doc core.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.Outline == nil {
		return "", fmt.Errorf("assemble: document has no outline")
	}

	blocks := make(map[string]core.ContentBlock, len(doc.Blocks))
	for _, b := range doc.Blocks {
		blocks[b.Section] = b
	}
	images := make(map[int]core.ImageRef, len(doc.Images))
	for _, img := range doc.Images {
		images[img.Order] = img
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", doc.Outline.Title)
	for i, section := range doc.Outline.Sections {
		fmt.Fprintf(&buf, "## %s\n\n", section.Title)
		if img, ok := images[i]; ok && img.URL != "" {
			alt := img.AltText
			if alt == "" {
				alt = section.Title
			}
			fmt.Fprintf(&buf, "![%s](%s)\n\n", alt, img.URL)
		}
		if block, ok := blocks[section.Title]; ok {
			buf.WriteString(block.Markdown)
			buf.WriteString("\n\n")
		}
	}
	if m.includeFindings && len(doc.Findings) > 0 {
		buf.WriteString("## Research Notes\n\n")
		for _, f := range doc.Findings {
			fmt.Fprintf(&buf, "- **%s** %s\n", f.Question, f.Summary)
		}
		buf.WriteString("\n")
	}

	artifactID := uuid.NewString()
	if err := m.artifacts.Save(taskID, artifactID, buf.Bytes()); err != nil {
		return "", fmt.Errorf("assemble: saving artifact: %w", err)
	}
	m.logger.Debug("assembled document task_id=%s artifact_id=%s bytes=%d", taskID, artifactID, buf.Len())
	return artifactID, nil
}
