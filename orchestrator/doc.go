// Package orchestrator contains the top-level driver of the report pipeline.
//
// The Orchestrator accepts generation requests, creates trackable tasks,
// walks the pipeline graph dispatching ready stages to the executor under a
// shared concurrency budget, folds results into the task store, decides
// terminal success or failure, invokes the assembly collaborator and streams
// progress events to subscribers. Tasks are independent and interleave
// freely; the budget semaphore is the only resource shared across them.
package orchestrator
