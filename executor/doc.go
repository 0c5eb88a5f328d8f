// Package executor runs one pipeline stage's fan-out set of work units with
// timeout, retry and concurrency limiting.
//
// The concurrency budget is a counting semaphore shared across the whole
// orchestrator process, not per task: a slot is held only while a gateway
// call is in flight, never across backoff delays. Retries follow an explicit
// RetryPolicy (attempt cap, exponential delay with upper bound, retryable
// predicate) applied uniformly to every unit rather than wrapped ad hoc
// around individual calls.
package executor
