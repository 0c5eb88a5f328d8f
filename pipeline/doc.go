// Package pipeline declares the static stage graph that drives every task.
//
// A Stage names its upstream dependencies, whether it is optional, its
// progress weight, how it fans out into independent work units and how unit
// results merge back into the task's document. Stages are declared once per
// pipeline configuration; runtime state lives with each task, never here.
//
// Graph validates the declarations at construction time (unknown
// dependencies, cycles) so a malformed pipeline fails fast as a programmer
// error instead of surfacing mid-task. Ready is a pure function of per-task
// stage states, which keeps readiness independently testable and safe to
// re-evaluate after every state change.
package pipeline
