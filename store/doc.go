// Package store provides the two shared-state persistence primitives the
// rest of the runtime is built on: an atomically-written JSON snapshot
// keyed by record id, and an append-only JSONL log with offset-tracked
// reads. Both come in a filesystem-backed form (the system of record for
// a single shared directory) and a Redis-backed form (for deployments
// where agent processes don't share a filesystem).
package store
