package pipeline

import (
	"fmt"

	"github.com/hupe1980/reportmesh/core"
)

// Stage is one named unit of the pipeline. The same Stage value drives every
// task instance; Expand and Merge receive the task snapshot they operate on.
type Stage struct {
	// Name uniquely identifies the stage within its graph.
	Name string

	// DependsOn lists stages that must be done (or skipped) before this
	// stage may start.
	DependsOn []string

	// Optional marks a stage whose failure is recorded but does not fail the
	// task. Only image generation is optional in the canonical report graph.
	Optional bool

	// Weight is the stage's share of overall task progress. Zero means 1.
	Weight int

	// Skip, when non-nil, excludes the stage for a given task (for example
	// image generation when the request disables images). A skipped stage
	// satisfies dependents like a done stage.
	Skip func(task *core.Task) bool

	// Expand builds the stage's fan-out set of independent work units from
	// the task snapshot.
	Expand func(task *core.Task) ([]core.WorkUnit, error)

	// Merge combines successful unit responses into the stage's contribution
	// to the task document. Responses arrive indexed by unit; failed optional
	// units are already excluded.
	Merge func(task *core.Task, outs []core.AgentResponse) (core.StageOutput, error)
}

// weight returns the effective progress weight.
func (s *Stage) weight() int {
	if s.Weight <= 0 {
		return 1
	}
	return s.Weight
}

// Graph is an immutable, validated set of stages. Construct with NewGraph.
type Graph struct {
	stages map[string]*Stage
	order  []string
	total  int
}

// NewGraph validates the stage declarations and returns the graph. It fails
// with a configuration error on duplicate names, unknown dependencies or
// cycles; these are programmer errors, not runtime conditions.
func NewGraph(stages ...*Stage) (*Graph, error) {
	g := &Graph{stages: make(map[string]*Stage, len(stages))}
	for _, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("pipeline: stage with empty name")
		}
		if _, dup := g.stages[st.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage %q", st.Name)
		}
		g.stages[st.Name] = st
		g.order = append(g.order, st.Name)
		g.total += st.weight()
	}
	for _, st := range stages {
		for _, dep := range st.DependsOn {
			if _, ok := g.stages[dep]; !ok {
				return nil, fmt.Errorf("pipeline: stage %q depends on unknown stage %q", st.Name, dep)
			}
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// MustGraph is NewGraph that panics on error, for static graph declarations.
func MustGraph(stages ...*Stage) *Graph {
	g, err := NewGraph(stages...)
	if err != nil {
		panic(err)
	}
	return g
}

// checkAcyclic runs a three-color DFS over the dependency edges.
func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.stages))
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return fmt.Errorf("pipeline: dependency cycle through stage %q", name)
		case black:
			return nil
		}
		color[name] = gray
		for _, dep := range g.stages[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for _, name := range g.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Stage returns the named stage declaration.
func (g *Graph) Stage(name string) (*Stage, bool) {
	st, ok := g.stages[name]
	return st, ok
}

// Stages returns all stages in declaration order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.stages[name])
	}
	return out
}

// Names returns the stage names in declaration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Weight returns the effective progress weight of the named stage.
func (g *Graph) Weight(name string) int {
	if st, ok := g.stages[name]; ok {
		return st.weight()
	}
	return 0
}

// TotalWeight returns the sum of all stage weights.
func (g *Graph) TotalWeight() int { return g.total }

// Ready returns every stage whose dependencies are all satisfied and whose
// own state is still pending for the given task. Pure function: callers may
// re-evaluate it after every state change.
//
// A dependency is satisfied by done or skipped. A failed dependency never
// satisfies; stages behind a failed optional dependency stay pending and the
// orchestrator resolves them as blocked once the graph drains.
func (g *Graph) Ready(states map[string]core.StageState) []*Stage {
	var ready []*Stage
	for _, name := range g.order {
		st := g.stages[name]
		if state, ok := states[name]; ok && state != core.StagePending {
			continue
		}
		satisfied := true
		for _, dep := range st.DependsOn {
			if s := states[dep]; s != core.StageDone && s != core.StageSkipped {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, st)
		}
	}
	return ready
}

// AllRequiredDone reports whether every required stage is done or skipped.
func (g *Graph) AllRequiredDone(states map[string]core.StageState) bool {
	for _, name := range g.order {
		st := g.stages[name]
		if st.Optional {
			continue
		}
		if s := states[name]; s != core.StageDone && s != core.StageSkipped {
			return false
		}
	}
	return true
}

// Blocked returns required stages that are still pending but can never run
// because a dependency is failed. Used by the orchestrator to convert a
// drained, non-terminal graph into a deterministic task failure.
func (g *Graph) Blocked(states map[string]core.StageState) []*Stage {
	var blocked []*Stage
	for _, name := range g.order {
		st := g.stages[name]
		if st.Optional {
			continue
		}
		if s := states[name]; s != core.StagePending && s != "" {
			continue
		}
		for _, dep := range st.DependsOn {
			if states[dep] == core.StageFailed {
				blocked = append(blocked, st)
				break
			}
		}
	}
	return blocked
}
