// Package gateway routes work units to external collaborators through a
// closed role table and normalizes their failures.
//
// The gateway is the only place collaborator-specific knowledge lives: each
// backend classifies its native failure modes into exactly two buckets,
// transient (retryable) or fatal, before an error crosses the gateway
// boundary. Everything above the gateway is agnostic to which concrete
// service answers a role.
//
// Concrete backends live in sub-packages (gateway/openai, gateway/anthropic)
// and register per-role handlers; mixed deployments can register different
// vendors for different roles on the same gateway.
package gateway
