// Package reportmesh provides a high-level façade over the orchestrator and
// service abstractions (task store, artifacts, gateway & logging) enabling
// rapid construction of report generation pipelines. Most applications
// interact with this package by:
//  1. Creating a ReportMesh via New() (optionally overriding default in-memory services)
//  2. Registering collaborator backends on the gateway (openai, anthropic, custom)
//  3. Submitting topics (Submit) and following progress (Status, Subscribe)
//
// The façade delegates orchestration to orchestrator.Orchestrator while
// keeping setup and usage ergonomics concise. All defaults are safe for
// local development and testing; production deployments typically supply
// durable store implementations and a structured logger.
package reportmesh

import (
	"github.com/hupe1980/reportmesh/core"
	"github.com/hupe1980/reportmesh/executor"
	"github.com/hupe1980/reportmesh/gateway"
	"github.com/hupe1980/reportmesh/logging"
	"github.com/hupe1980/reportmesh/orchestrator"
	"github.com/hupe1980/reportmesh/pipeline"
)

// Options configures the ReportMesh instance.
type Options struct {
	// Graph is the pipeline driving every task. Defaults to the canonical
	// report graph (research → structure → {write, image}).
	Graph *pipeline.Graph

	// Config contains orchestrator operational parameters (concurrency
	// budget, unit timeout, event buffering).
	Config orchestrator.Config

	// Retry is the per-unit retry policy.
	Retry executor.RetryPolicy

	// Store holds authoritative task state. Defaults to in-memory.
	Store core.TaskStore

	// Artifacts stores final documents. Defaults to in-memory.
	Artifacts core.ArtifactStore

	// Assembler produces the final artifact. Defaults to Markdown assembly.
	Assembler core.Assembler

	// Sink receives progress events in addition to channel subscribers.
	Sink core.ProgressSink

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
}

// ReportMesh bundles the agent gateway with the orchestrator. Orchestrator
// methods (Submit, Status, Cancel, Subscribe, Artifact) are promoted.
type ReportMesh struct {
	*orchestrator.Orchestrator

	gateway *gateway.Gateway
	graph   *pipeline.Graph
}

// New creates a ReportMesh with sensible defaults. Collaborator backends
// must be registered on Gateway() before the first Submit.
func New(optFns ...func(o *Options)) *ReportMesh {
	opts := Options{
		Config: orchestrator.DefaultConfig,
		Retry:  executor.DefaultRetryPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Graph == nil {
		opts.Graph = pipeline.ReportGraph()
	}

	gw := gateway.New(func(o *gateway.Options) {
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(opts.Graph, gw, func(o *orchestrator.Options) {
		o.Config = opts.Config
		o.Retry = opts.Retry
		o.Store = opts.Store
		o.Artifacts = opts.Artifacts
		o.Assembler = opts.Assembler
		o.Sink = opts.Sink
		o.Logger = opts.Logger
	})

	return &ReportMesh{Orchestrator: orch, gateway: gw, graph: opts.Graph}
}

// Gateway returns the agent gateway for backend registration.
func (m *ReportMesh) Gateway() *gateway.Gateway { return m.gateway }

// Graph returns the pipeline graph driving every task.
func (m *ReportMesh) Graph() *pipeline.Graph { return m.graph }
