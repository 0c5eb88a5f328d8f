// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer ReportMeshLogger with contextual
// helpers (task, stage, component) and domain specific logging helpers for
// agent calls and stage execution.
package logging
