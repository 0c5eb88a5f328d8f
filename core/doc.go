// Package core provides the foundational domain types, interfaces and error
// taxonomy used by ReportMesh. It defines the core abstractions for:
//
//   - Tasks (trackable report generation requests with status and progress)
//   - The document content model (findings, outline, content blocks, images)
//   - Work units and stage results flowing between pipeline components
//   - Agent roles and the gateway invocation envelope
//   - Pluggable stores for task state and binary artifacts
//
// The package intentionally keeps implementation concerns (persistence,
// orchestration, concrete agent backends) out of scope, exposing small
// interfaces to enable custom backends and extensions. All exported
// identifiers include concise documentation to aid discoverability and
// external consumption.
package core
