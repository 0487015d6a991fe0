// Package model defines the provider-agnostic abstractions and concrete
// helpers for the planner collaborator that drives agentloop executors.
//
// Core goals:
//   - Normalize one decision cycle (prompt + permitted action schema in,
//     ordered non-empty action list out) behind a single Planner interface
//   - Classify transport failures: transient (retry with bounded backoff),
//     authorization (fail fast) and malformed output (repaired by the
//     executor, not the transport)
//   - Keep request shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (Mock)
//
// Providers (e.g. OpenAI, Anthropic) implement the Planner interface from
// this package so higher layers (executor, consolidation) remain decoupled
// from vendor SDKs.
package model
