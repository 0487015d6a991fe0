// Package core provides the foundational domain types and interfaces used by
// agentloop. It defines the core abstractions for:
//
//   - Frames (one level of a nested agent invocation, with status and input)
//   - The active execution stack and the hierarchy index surviving completion
//   - Action records and the dual-track history (rendered vs. fact streams)
//   - Consolidation snapshots (todo state, durable facts, next-step plan)
//   - The durable TaskState and the StateStore persistence contract
//   - The shared error taxonomy for frame and task outcomes
//
// The package intentionally keeps implementation concerns (persistence
// backends, the turn loop, model transports) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
