// Package store contains concrete implementations of core.TaskStore.
//
// The canonical TaskStore interface lives in the core package to avoid
// dependency cycles and keep domain contracts central. Implementation
// packages like this one (in-memory, databases, distributed KV stores)
// provide storage backends that can be swapped without touching calling
// code.
//
// Every implementation must uphold single-writer-per-task semantics:
// mutations for one task id are serialized, distinct ids proceed fully
// concurrently, and returned tasks are snapshots that never expose a torn
// intermediate state.
package store
