package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportmesh/core"
)

func reportTask(cfg core.TaskConfig) *core.Task {
	return &core.Task{
		ID:       "task-1",
		Topic:    "quantum networking",
		Config:   cfg,
		Document: core.Document{Topic: "quantum networking"},
	}
}

func TestReportGraph_Shape(t *testing.T) {
	g := ReportGraph()

	assert.Equal(t, []string{StageResearch, StageStructure, StageWrite, StageImage}, g.Names())
	assert.Equal(t, 100, g.TotalWeight())

	img, ok := g.Stage(StageImage)
	require.True(t, ok)
	assert.True(t, img.Optional)

	write, ok := g.Stage(StageWrite)
	require.True(t, ok)
	assert.False(t, write.Optional)
	assert.Equal(t, []string{StageStructure}, write.DependsOn)
}

func TestReportGraph_ImageSkippedWithoutImages(t *testing.T) {
	g := ReportGraph()
	img, _ := g.Stage(StageImage)

	assert.True(t, img.Skip(reportTask(core.TaskConfig{IncludeImages: false})))
	assert.False(t, img.Skip(reportTask(core.TaskConfig{IncludeImages: true})))
}

func TestExpandResearch_OneUnitPerQuestion(t *testing.T) {
	task := reportTask(core.TaskConfig{})
	st, _ := ReportGraph().Stage(StageResearch)

	units, err := st.Expand(task)

	require.NoError(t, err)
	require.Len(t, units, len(ResearchQuestions(task.Topic)))
	for i, u := range units {
		assert.Equal(t, StageResearch, u.Stage)
		assert.Equal(t, i, u.Index)
		assert.Equal(t, core.RoleResearch, u.Role)
		assert.Equal(t, task.Topic, u.Request.Topic)
		assert.NotEmpty(t, u.Request.Question)
	}
}

func TestMergeResearch_CollectsFindings(t *testing.T) {
	st, _ := ReportGraph().Stage(StageResearch)
	outs := []core.AgentResponse{
		{Finding: &core.Finding{Question: "q1", Summary: "s1"}},
		{Finding: &core.Finding{Question: "q2", Summary: "s2"}},
	}

	output, err := st.Merge(reportTask(core.TaskConfig{}), outs)

	require.NoError(t, err)
	findings, ok := output.(core.FindingsOutput)
	require.True(t, ok)
	assert.Len(t, findings.Findings, 2)
}

func TestMergeResearch_MissingFindingIsFatal(t *testing.T) {
	st, _ := ReportGraph().Stage(StageResearch)

	_, err := st.Merge(reportTask(core.TaskConfig{}), []core.AgentResponse{{}})

	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestExpandStructure_UsesDefaultMaxSections(t *testing.T) {
	st, _ := ReportGraph().Stage(StageStructure)

	units, err := st.Expand(reportTask(core.TaskConfig{}))

	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, DefaultMaxSections, units[0].Request.MaxSections)
}

func TestMergeStructure_CapsSections(t *testing.T) {
	st, _ := ReportGraph().Stage(StageStructure)
	outline := &core.Outline{
		Title: "Report",
		Sections: []core.OutlineSection{
			{Title: "One"}, {Title: "Two"}, {Title: "Three"},
		},
	}

	output, err := st.Merge(reportTask(core.TaskConfig{MaxSections: 2}), []core.AgentResponse{{Outline: outline}})

	require.NoError(t, err)
	merged := output.(core.OutlineOutput)
	assert.Len(t, merged.Outline.Sections, 2)
}

func TestMergeStructure_EmptyOutlineIsFatal(t *testing.T) {
	st, _ := ReportGraph().Stage(StageStructure)

	_, err := st.Merge(reportTask(core.TaskConfig{}), []core.AgentResponse{{Outline: &core.Outline{Title: "Report"}}})

	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestExpandWrite_OneUnitPerSection(t *testing.T) {
	task := reportTask(core.TaskConfig{})
	task.Document.Outline = &core.Outline{
		Title:    "Report",
		Sections: []core.OutlineSection{{Title: "One"}, {Title: "Two"}},
	}
	st, _ := ReportGraph().Stage(StageWrite)

	units, err := st.Expand(task)

	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Two", units[1].Request.Section.Title)
	assert.Equal(t, 1, units[1].Request.SectionIndex)
}

func TestExpandWrite_RequiresOutline(t *testing.T) {
	st, _ := ReportGraph().Stage(StageWrite)

	_, err := st.Expand(reportTask(core.TaskConfig{}))

	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
}

func TestExpandImage_OnlySectionsWantingImages(t *testing.T) {
	task := reportTask(core.TaskConfig{IncludeImages: true})
	task.Document.Outline = &core.Outline{
		Title: "Report",
		Sections: []core.OutlineSection{
			{Title: "Plain"},
			{Title: "Illustrated", WantsImage: true, ImagePrompt: "a diagram"},
			{Title: "NoPrompt", WantsImage: true},
		},
	}
	st, _ := ReportGraph().Stage(StageImage)

	units, err := st.Expand(task)

	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "a diagram", units[0].Request.Prompt)
	assert.Equal(t, 1, units[0].Request.SectionIndex)
	// Sections without an explicit prompt get a derived one.
	assert.NotEmpty(t, units[1].Request.Prompt)
}

func TestMergeImage_IgnoresEmptyResponses(t *testing.T) {
	st, _ := ReportGraph().Stage(StageImage)
	outs := []core.AgentResponse{
		{Image: &core.ImageRef{URL: "https://images.example/1.png", Order: 1}},
		{},
	}

	output, err := st.Merge(reportTask(core.TaskConfig{IncludeImages: true}), outs)

	require.NoError(t, err)
	images := output.(core.ImagesOutput)
	assert.Len(t, images.Images, 1)
}
